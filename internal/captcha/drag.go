package captcha

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Parâmetros do movimento humano. Passos demais viram movimento robótico de
// velocidade constante; jitter demais erra o encaixe por pixels.
const (
	dragMinSteps = 18
	dragMaxSteps = 28
	jitterX      = 1.2
	jitterY      = 0.8
	stepDelayMin = 10 * time.Millisecond
	stepDelayMax = 30 * time.Millisecond
)

// PathPoint é um ponto intermediário do arrasto com o delay antes do próximo.
type PathPoint struct {
	X, Y  float64
	Delay time.Duration
}

// BuildDragPath gera a trajetória do arrasto: interpolação smoothstep
// (acelera, cruzeiro, desacelera) com jitter por ponto. O último ponto é
// exatamente o destino, então o deslocamento total nunca deriva.
func BuildDragPath(startX, startY, endX, endY float64) []PathPoint {
	steps := randomInt(dragMinSteps, dragMaxSteps)
	path := make([]PathPoint, 0, steps)

	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		ease := t * t * (3 - 2*t)

		x := startX + (endX-startX)*ease
		y := startY + (endY-startY)*ease
		if i < steps {
			x += randomFloat(-jitterX, jitterX)
			y += randomFloat(-jitterY, jitterY)
		}

		delay := stepDelayMin + time.Duration(rand.Float64()*float64(stepDelayMax-stepDelayMin))
		path = append(path, PathPoint{X: x, Y: y, Delay: delay})
	}
	return path
}

// HumanDrag arrasta o slider pela distância dada, em coordenadas CSS do frame
// que hospeda o widget. Os eventos de mouse são despachados na página
// principal, então as coordenadas do frame são transladadas antes.
func HumanDrag(page, framePage *rod.Page, slider *rod.Element, distanceX float64) error {
	shape, err := slider.Shape()
	if err != nil {
		return fmt.Errorf("erro obtendo posição do slider: %w", err)
	}
	if len(shape.Quads) == 0 {
		return fmt.Errorf("slider sem dimensões válidas")
	}
	quad := shape.Quads[0]
	startX := (quad[0] + quad[2]) / 2
	startY := (quad[1] + quad[5]) / 2

	offX, offY := frameOffset(page, framePage)
	startX += offX
	startY += offY

	endX := startX + distanceX
	endY := startY + randomFloat(-3, 3)

	// Aproximação e pausa de "reconhecimento" antes de segurar o botão.
	if err := page.Mouse.MoveLinear(proto.Point{X: startX, Y: startY}, 3); err != nil {
		return fmt.Errorf("erro aproximando do slider: %w", err)
	}
	time.Sleep(time.Duration(randomInt(150, 400)) * time.Millisecond)

	if err := page.Mouse.Down("left", 1); err != nil {
		return fmt.Errorf("erro pressionando mouse: %w", err)
	}
	time.Sleep(time.Duration(randomInt(80, 200)) * time.Millisecond)

	for _, p := range BuildDragPath(startX, startY, endX, endY) {
		if err := page.Mouse.MoveLinear(proto.Point{X: p.X, Y: p.Y}, 1); err != nil {
			page.Mouse.Up("left", 1)
			return fmt.Errorf("erro durante arrasto: %w", err)
		}
		time.Sleep(p.Delay)
	}

	// Hesitação antes de soltar, como um humano conferindo o encaixe.
	time.Sleep(time.Duration(randomInt(100, 300)) * time.Millisecond)
	if err := page.Mouse.Up("left", 1); err != nil {
		return fmt.Errorf("erro soltando mouse: %w", err)
	}
	time.Sleep(time.Duration(randomInt(100, 250)) * time.Millisecond)
	return nil
}

// frameOffset translada coordenadas do frame do widget para a página
// principal: procura o <iframe> cuja URL bate com a do frame e soma a origem
// da sua caixa. Frames aninhados acumulam o offset de cada nível. Quando o
// widget está no documento principal o offset é zero.
func frameOffset(page, framePage *rod.Page) (float64, float64) {
	if page == framePage {
		return 0, 0
	}
	info, err := framePage.Timeout(frameProbeTimeout).Info()
	if err != nil {
		return 0, 0
	}
	if x, y, ok := findFrameOrigin(page, info.URL, 2); ok {
		return x, y
	}
	return 0, 0
}

func findFrameOrigin(page *rod.Page, targetURL string, depth int) (float64, float64, bool) {
	if depth <= 0 || targetURL == "" {
		return 0, 0, false
	}
	els, err := page.Timeout(frameProbeTimeout).Elements("iframe")
	if err != nil {
		return 0, 0, false
	}
	for _, el := range els {
		frame, err := el.Frame()
		if err != nil {
			continue
		}
		shape, err := el.Shape()
		if err != nil || len(shape.Quads) == 0 {
			continue
		}
		originX := shape.Quads[0][0]
		originY := shape.Quads[0][1]

		info, err := frame.Timeout(frameProbeTimeout).Info()
		if err == nil && info.URL == targetURL {
			return originX, originY, true
		}
		if x, y, ok := findFrameOrigin(frame, targetURL, depth-1); ok {
			return originX + x, originY + y, true
		}
	}
	return 0, 0, false
}

// randomFloat retorna um float64 aleatório entre min e max.
func randomFloat(min, max float64) float64 {
	return min + rand.Float64()*(max-min)
}

// randomInt retorna um inteiro aleatório entre min e max (inclusive).
func randomInt(min, max int) int {
	if min >= max {
		return min
	}
	return min + rand.IntN(max-min+1)
}
