package captcha

import (
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/loviiin/project-hermes/pkg/config"
)

// Pesos do score de frame. URL é o sinal mais forte porque o provedor serve o
// widget de um host próprio; atributos de drag são genéricos demais para
// valerem mais que 1.
const (
	frameURLWeight     = 8
	frameNameWeight    = 5
	frameElementWeight = 3
	frameDragWeight    = 1
)

const frameProbeTimeout = 800 * time.Millisecond

// FrameCandidate é um snapshot imutável de um frame no momento da varredura.
// Toda a pontuação acontece sobre esse valor; nada aqui segura referência
// viva ao DOM além do handle usado depois para capturar as imagens.
type FrameCandidate struct {
	URL   string
	Name  string
	Title string
	// Elements marca quais seletores responderam presente no frame.
	Elements map[string]bool
	// Dead marca frames que lançaram erro durante a inspeção (cross-origin
	// bloqueado ou destruídos no meio da varredura). Score sempre zero.
	Dead bool

	page *rod.Page
}

// ScoreFrame pontua um candidato contra as dicas configuradas.
func ScoreFrame(c FrameCandidate, cfg *config.CaptchaConfig) int {
	if c.Dead {
		return 0
	}
	score := 0
	for _, hint := range cfg.FrameURLHints {
		if hint != "" && strings.Contains(c.URL, hint) {
			score += frameURLWeight
		}
	}
	for _, name := range cfg.FrameNames {
		if name != "" && c.Name == name {
			score += frameNameWeight
		}
	}
	for _, sel := range []string{cfg.ContainerSelector, cfg.BackgroundSelector, cfg.PieceSelector, cfg.SliderSelector} {
		if c.Elements[sel] {
			score += frameElementWeight
		}
	}
	for _, pattern := range cfg.DragAttrPatterns {
		if c.Elements[pattern] {
			score += frameDragWeight
		}
	}
	return score
}

// PickFrame escolhe o frame que hospeda o widget. Primário: maior score acima
// do limiar, empate resolvido pela ordem de varredura. Secundário: primeiro
// frame cuja URL ou título contém uma das dicas de título (cobre o caso do
// documento principal hospedar o captcha direto).
//
// Retorna o índice no slice, ou -1 quando nenhum frame é convincente.
func PickFrame(cands []FrameCandidate, cfg *config.CaptchaConfig) int {
	bestIdx, bestScore := -1, 0
	for i, c := range cands {
		if s := ScoreFrame(c, cfg); s > bestScore {
			bestIdx, bestScore = i, s
		}
	}
	if bestIdx >= 0 && bestScore >= cfg.FrameScoreThreshold {
		return bestIdx
	}

	for i, c := range cands {
		if c.Dead {
			continue
		}
		for _, hint := range cfg.TitleHints {
			if hint == "" {
				continue
			}
			if strings.Contains(c.URL, hint) || strings.Contains(strings.ToLower(c.Title), strings.ToLower(hint)) {
				return i
			}
		}
	}
	return -1
}

// collectFrameCandidates tira o snapshot do documento principal e de todos os
// iframes até dois níveis de profundidade. Frames que lançam erro em qualquer
// sondagem entram como Dead em vez de derrubar a varredura.
func collectFrameCandidates(page *rod.Page, cfg *config.CaptchaConfig) []FrameCandidate {
	var cands []FrameCandidate
	cands = append(cands, snapshotFrame(page, "", cfg))
	cands = append(cands, collectIframes(page, cfg, 2)...)
	return cands
}

func collectIframes(page *rod.Page, cfg *config.CaptchaConfig, depth int) []FrameCandidate {
	if depth <= 0 {
		return nil
	}
	var cands []FrameCandidate

	els, err := page.Timeout(frameProbeTimeout).Elements("iframe")
	if err != nil {
		return nil
	}
	for _, el := range els {
		name := ""
		if attr, err := el.Attribute("name"); err == nil && attr != nil {
			name = *attr
		}

		frame, err := el.Frame()
		if err != nil {
			src := ""
			if attr, aerr := el.Attribute("src"); aerr == nil && attr != nil {
				src = *attr
			}
			cands = append(cands, FrameCandidate{URL: src, Name: name, Dead: true})
			continue
		}

		cand := snapshotFrame(frame, name, cfg)
		cands = append(cands, cand)
		if !cand.Dead {
			cands = append(cands, collectIframes(frame, cfg, depth-1)...)
		}
	}
	return cands
}

// snapshotFrame sonda um frame: metadados mais presença de cada seletor de
// interesse. Qualquer erro marca o candidato como Dead.
func snapshotFrame(frame *rod.Page, name string, cfg *config.CaptchaConfig) FrameCandidate {
	cand := FrameCandidate{Name: name, Elements: map[string]bool{}, page: frame}

	info, err := frame.Timeout(frameProbeTimeout).Info()
	if err != nil {
		cand.Dead = true
		return cand
	}
	cand.URL = info.URL
	cand.Title = info.Title

	selectors := []string{cfg.ContainerSelector, cfg.BackgroundSelector, cfg.PieceSelector, cfg.SliderSelector}
	selectors = append(selectors, cfg.DragAttrPatterns...)
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		has, _, err := frame.Timeout(frameProbeTimeout).Has(sel)
		if err != nil {
			cand.Dead = true
			return cand
		}
		cand.Elements[sel] = has
	}
	return cand
}

// captchaEvidence responde se AINDA existe sinal de captcha em qualquer
// frame: container presente, URL com dica do provedor ou título de
// verificação. Usado antes de declarar uma tentativa de drag como vitória.
func captchaEvidence(page *rod.Page, cfg *config.CaptchaConfig) bool {
	for _, c := range collectFrameCandidates(page, cfg) {
		if c.Dead {
			// Frame inacessível do provedor ainda conta como captcha na tela.
			for _, hint := range cfg.FrameURLHints {
				if hint != "" && strings.Contains(c.URL, hint) {
					return true
				}
			}
			continue
		}
		if c.Elements[cfg.ContainerSelector] {
			return true
		}
		for _, hint := range cfg.FrameURLHints {
			if hint != "" && strings.Contains(c.URL, hint) {
				return true
			}
		}
		for _, hint := range cfg.TitleHints {
			if hint != "" && strings.Contains(strings.ToLower(c.Title), strings.ToLower(hint)) {
				return true
			}
		}
	}
	return false
}
