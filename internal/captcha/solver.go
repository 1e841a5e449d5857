package captcha

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/loviiin/project-hermes/pkg/config"
)

// Solver orquestra a resolução de um slider captcha numa página já aberta.
// Uma instância é segura para reuso sequencial; FellBack e UsedRemote
// refletem sempre a última chamada de Run.
type Solver struct {
	cfg    *config.CaptchaConfig
	remote *RemoteSolver // nil desabilita o fallback remoto

	// FellBack indica que a última solução não veio do matcher local.
	FellBack bool
	// UsedRemote indica que a última solução veio do solver via NATS.
	UsedRemote bool
	// LastState é o estado terminal da última chamada de Run.
	LastState SolveState
}

func NewSolver(cfg *config.CaptchaConfig, remote *RemoteSolver) *Solver {
	return &Solver{cfg: cfg, remote: remote}
}

// Run detecta e resolve o captcha da página. resubmit reenvia o formulário
// que disparou o captcha; é usado quando o provedor só entrega frames isca e
// a única saída é recomeçar o desafio.
//
// Estados terminais: StateNoCaptcha, StateSolved ou StateFailed. Nenhum erro
// de driver escapa como pânico.
func (s *Solver) Run(ctx context.Context, page *rod.Page, resubmit func() error) (state SolveState, err error) {
	defer func() { s.LastState = state }()
	defer func() {
		if r := recover(); r != nil {
			state = StateFailed
			err = fmt.Errorf("captcha: pânico do driver durante resolução: %v", r)
		}
	}()

	s.FellBack = false
	s.UsedRemote = false

	if !s.waitForCaptcha(ctx, page) {
		return StateNoCaptcha, nil
	}
	fmt.Println("[Captcha] Desafio detectado na página")

	resubmits := 0
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return StateFailed, err
		}
		if attempt > 1 {
			fmt.Printf("[Captcha] Tentativa %d/%d...\n", attempt, s.cfg.MaxAttempts)
			time.Sleep(2 * time.Second)
		}

		cands := collectFrameCandidates(page, s.cfg)
		idx := PickFrame(cands, s.cfg)
		if idx < 0 {
			// Só frames isca na tela: esfria e reenvia o formulário para o
			// provedor servir um desafio novo.
			if resubmits >= s.cfg.MaxResubmits || resubmit == nil {
				fmt.Println("[Captcha] Nenhum frame vivo e reenvios esgotados")
				return StateFailed, ErrSemFrameVivo
			}
			cooldown := time.Duration(randomInt(20, 40)) * time.Second
			fmt.Printf("[Captcha] Só frames isca. Esfriando por %v antes de reenviar (%d/%d)\n",
				cooldown, resubmits+1, s.cfg.MaxResubmits)
			select {
			case <-time.After(cooldown):
			case <-ctx.Done():
				return StateFailed, ctx.Err()
			}
			if err := resubmit(); err != nil {
				fmt.Printf("[Captcha] Erro reenviando formulário: %v\n", err)
			}
			resubmits++
			if !s.waitForCaptcha(ctx, page) {
				// O reenvio passou sem desafio novo.
				return StateSolved, nil
			}
			continue
		}
		host := cands[idx].page

		bgEl, pieceEl, sliderEl, err := findPuzzleElements(host, s.cfg)
		if err != nil {
			fmt.Printf("[Captcha] Elementos não encontrados (tentativa %d): %v\n", attempt, err)
			continue
		}

		bgImg, bgRaw, bgBox, err := elementImage(bgEl)
		if err != nil {
			fmt.Printf("[Captcha] Erro capturando fundo: %v\n", err)
			continue
		}
		pieceImg, pieceRaw, pieceBox, err := elementImage(pieceEl)
		if err != nil {
			fmt.Printf("[Captcha] Erro capturando peça: %v\n", err)
			continue
		}
		s.saveDebugArtifacts(bgRaw, pieceRaw)

		// O slider em repouso limita onde o buraco pode começar: o provedor
		// nunca desenha o recorte atrás da posição inicial da peça.
		minX := 0
		if sliderBox, err := elementBox(sliderEl); err == nil {
			if rest := int(sliderBox.X - bgBox.X); rest > 0 {
				minX = rest
			}
		}

		match := FindSliderOffset(bgImg, pieceImg, s.cfg.MinConfidence, minX, -1)
		if match == nil && s.cfg.RemoteFallback && s.remote != nil {
			fmt.Println("[Captcha] Matcher local falhou. Tentando solver remoto...")
			offset, conf, rerr := s.remote.Solve(ctx, bgRaw, pieceRaw)
			if rerr != nil {
				fmt.Printf("[Captcha] Solver remoto falhou: %v\n", rerr)
			} else {
				match = &MatchResult{OffsetX: int(offset), Confidence: conf, ViaFallback: true}
				s.UsedRemote = true
			}
		}
		if match == nil {
			fmt.Printf("[Captcha] Nenhuma solução para as imagens (tentativa %d)\n", attempt)
			continue
		}
		if match.ViaFallback {
			s.FellBack = true
		}
		fmt.Printf("[Captcha] Solução: offset=%dpx confiança=%.2f fallback=%v\n",
			match.OffsetX, match.Confidence, match.ViaFallback)

		// O offset é medido na imagem; o arrasto acontece em CSS. elementImage
		// já normalizou a imagem para o tamanho CSS, então só falta descontar
		// a posição de repouso da peça.
		distance := float64(match.OffsetX) - (pieceBox.X - bgBox.X)
		maxDistance := bgBox.Width - pieceBox.Width

		for _, delta := range s.cfg.DragDeltas {
			target := distance + float64(delta)
			if target < 0 {
				target = 0
			}
			if maxDistance > 0 && target > maxDistance {
				target = maxDistance
			}

			if err := HumanDrag(page, host, sliderEl, target); err != nil {
				fmt.Printf("[Captcha] Erro arrastando slider: %v\n", err)
				break
			}
			time.Sleep(time.Duration(randomInt(1500, 2500)) * time.Millisecond)

			if !captchaEvidence(page, s.cfg) {
				fmt.Printf("[Captcha] 🎉 Resolvido na tentativa %d (delta %+d)\n", attempt, delta)
				return StateSolved, nil
			}

			// O widget geralmente reseta após o erro; reacha o slider antes
			// do próximo delta.
			if el, ferr := findSlider(host, s.cfg); ferr == nil {
				sliderEl = el
			} else {
				break
			}
		}
	}

	return StateFailed, ErrTentativasEsgotadas
}

// waitForCaptcha espera o desafio aparecer em algum frame até o timeout de
// detecção. false significa que a navegação seguiu sem captcha.
func (s *Solver) waitForCaptcha(ctx context.Context, page *rod.Page) bool {
	deadline := time.Now().Add(s.cfg.DetectTimeout())
	for {
		if captchaEvidence(page, s.cfg) {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// findPuzzleElements localiza fundo, peça e slider no frame do widget, com
// algumas rodadas de retry porque as imagens chegam depois do iframe.
func findPuzzleElements(host *rod.Page, cfg *config.CaptchaConfig) (bg, piece, slider *rod.Element, err error) {
	for round := 0; round < 3; round++ {
		if round > 0 {
			time.Sleep(700 * time.Millisecond)
		}
		bg, err = host.Timeout(2 * time.Second).Element(cfg.BackgroundSelector)
		if err != nil {
			continue
		}
		piece, err = host.Timeout(2 * time.Second).Element(cfg.PieceSelector)
		if err != nil {
			continue
		}
		slider, err = findSlider(host, cfg)
		if err != nil {
			continue
		}
		return bg, piece, slider, nil
	}
	return nil, nil, nil, ErrElementosNaoEncontrados
}

func findSlider(host *rod.Page, cfg *config.CaptchaConfig) (*rod.Element, error) {
	if el, err := host.Timeout(2 * time.Second).Element(cfg.SliderSelector); err == nil {
		return el, nil
	}
	if cfg.SliderAltSelector != "" {
		if el, err := host.Timeout(2 * time.Second).Element(cfg.SliderAltSelector); err == nil {
			return el, nil
		}
	}
	return nil, ErrElementosNaoEncontrados
}

// elementImage captura a imagem de um elemento e a normaliza para o tamanho
// CSS da sua caixa, para que offsets medidos na imagem sejam diretamente
// distâncias de arrasto (screenshots vêm multiplicados pelo device pixel
// ratio). Retorna também os bytes originais para debug e fallback remoto.
func elementImage(el *rod.Element) (image.Image, []byte, *proto.DOMRect, error) {
	box, err := elementBox(el)
	if err != nil {
		return nil, nil, nil, err
	}

	raw, err := el.Resource()
	if err != nil {
		raw, err = el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("erro capturando imagem do elemento: %w", err)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("erro decodificando imagem: %w", err)
	}

	cssW, cssH := int(box.Width), int(box.Height)
	if cssW > 0 && cssH > 0 && (img.Bounds().Dx() != cssW || img.Bounds().Dy() != cssH) {
		img = Resize(img, cssW, cssH)
	}
	return img, raw, box, nil
}

func elementBox(el *rod.Element) (*proto.DOMRect, error) {
	shape, err := el.Shape()
	if err != nil {
		return nil, err
	}
	if len(shape.Quads) == 0 {
		return nil, fmt.Errorf("elemento sem dimensões válidas")
	}
	return shape.Box(), nil
}

// saveDebugArtifacts grava as imagens capturadas para inspeção manual quando
// o diretório de debug está configurado.
func (s *Solver) saveDebugArtifacts(bgRaw, pieceRaw []byte) {
	if s.cfg.DebugDir == "" {
		return
	}
	if err := os.MkdirAll(s.cfg.DebugDir, 0o755); err != nil {
		return
	}
	id := uuid.New().String()[:8]
	os.WriteFile(filepath.Join(s.cfg.DebugDir, fmt.Sprintf("captcha_%s_bg.png", id)), bgRaw, 0o644)
	os.WriteFile(filepath.Join(s.cfg.DebugDir, fmt.Sprintf("captcha_%s_piece.png", id)), pieceRaw, 0o644)
}
