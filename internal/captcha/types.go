package captcha

import "errors"

// SolveState é a máquina de estados da resolução de um captcha.
type SolveState int

const (
	StateNotChecked SolveState = iota
	StateNoCaptcha
	StateCaptchaPresent
	StateSolving
	StateSolved
	StateFailed
)

func (s SolveState) String() string {
	switch s {
	case StateNotChecked:
		return "NOT_CHECKED"
	case StateNoCaptcha:
		return "NO_CAPTCHA"
	case StateCaptchaPresent:
		return "CAPTCHA_PRESENT"
	case StateSolving:
		return "SOLVING"
	case StateSolved:
		return "SOLVED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrElementosNaoEncontrados indica que o widget está presente mas as
	// imagens/slider não foram localizados em nenhum frame.
	ErrElementosNaoEncontrados = errors.New("captcha: elementos do puzzle não encontrados")

	// ErrSemFrameVivo indica que só há frames "isca" (decoy) — nenhum frame
	// acessível contém o widget de verdade.
	ErrSemFrameVivo = errors.New("captcha: nenhum frame vivo com o widget")

	// ErrTentativasEsgotadas indica que todas as tentativas de drag falharam.
	ErrTentativasEsgotadas = errors.New("captcha: tentativas de resolução esgotadas")
)

// MatchResult é a posição encontrada pelo template matching.
type MatchResult struct {
	// OffsetX é a distância horizontal, em pixels da imagem de fundo,
	// entre a borda esquerda do fundo e a posição do buraco.
	OffsetX int
	OffsetY int
	// Score é o custo bruto da melhor posição (menor = melhor).
	Score float64
	// Confidence em [0,1]: 1.0 quando a melhor posição é inequívoca,
	// perto de 0 quando há uma segunda posição quase tão boa.
	Confidence float64
	// ViaFallback marca soluções vindas do detector de buraco ou do solver
	// remoto em vez do template matching local.
	ViaFallback bool
}
