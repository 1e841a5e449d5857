package captcha

import (
	"image"
	"image/color"
	"testing"
)

// ruido é um LCG fixo para gerar fundos determinísticos nos testes.
func ruido(seed uint32) func() uint32 {
	state := seed
	return func() uint32 {
		state = state*1664525 + 1013904223
		return state >> 16
	}
}

func fundoRuidoso(w, h int, base, amplitude int, seed uint32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	next := ruido(seed)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := base + int(next()%uint32(amplitude)) - amplitude/2
			if v < 0 {
				v = 0
			}
			if v > 255 {
				v = 255
			}
			img.SetRGBA(x, y, color.RGBA{uint8(v), uint8(v), uint8(v), 255})
		}
	}
	return img
}

func recorte(src *image.RGBA, x0, y0, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetRGBA(x, y, src.RGBAAt(x0+x, y0+y))
		}
	}
	return dst
}

func pintaQuadrado(img *image.RGBA, x0, y0, size int, c color.RGBA) {
	for y := y0; y < y0+size; y++ {
		for x := x0; x < x0+size; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func TestMatcherEncontraRecorteExato(t *testing.T) {
	bg := fundoRuidoso(200, 120, 128, 200, 7)
	piece := recorte(bg, 90, 30, 40, 40)

	res := FindSliderOffset(bg, piece, 0.25, 0, -1)
	if res == nil {
		t.Fatal("Matcher retornou nil para um recorte exato")
	}
	if res.OffsetX != 90 || res.OffsetY != 30 {
		t.Errorf("Posição errada: esperava (90,30), recebi (%d,%d)", res.OffsetX, res.OffsetY)
	}
	if res.Confidence < 0.8 {
		t.Errorf("Confiança baixa demais para recorte exato: %.3f", res.Confidence)
	}
}

func TestMatcherIntervaloInvalido(t *testing.T) {
	bg := fundoRuidoso(100, 80, 128, 100, 1)
	piece := recorte(bg, 10, 10, 20, 20)

	if res := FindSliderOffset(bg, piece, 0.25, 50, 10); res != nil {
		t.Errorf("min_x > max_x deveria retornar nil, retornou %+v", res)
	}
}

func TestMatcherPecaMaiorQueFundo(t *testing.T) {
	bg := fundoRuidoso(50, 50, 128, 100, 2)
	piece := fundoRuidoso(100, 100, 128, 100, 3)

	if res := FindSliderOffset(bg, piece, 0.25, 0, -1); res != nil {
		t.Errorf("Peça maior que o fundo deveria retornar nil, retornou %+v", res)
	}
}

func TestMatcherRuidoNaoAumentaConfianca(t *testing.T) {
	bg := fundoRuidoso(180, 100, 128, 200, 11)
	clean := recorte(bg, 70, 25, 36, 36)

	perturba := func(amp int) *image.RGBA {
		out := recorte(bg, 70, 25, 36, 36)
		next := ruido(99)
		for i := 0; i < len(out.Pix); i += 4 {
			for c := 0; c < 3; c++ {
				v := int(out.Pix[i+c]) + int(next()%uint32(2*amp+1)) - amp
				if v < 0 {
					v = 0
				}
				if v > 255 {
					v = 255
				}
				out.Pix[i+c] = uint8(v)
			}
		}
		return out
	}

	conf := func(p *image.RGBA) float64 {
		res := FindSliderOffset(bg, p, 0.0, 0, -1)
		if res == nil {
			t.Fatal("Matcher retornou nil com min_confidence zero")
		}
		return res.Confidence
	}

	c0 := conf(clean)
	c1 := conf(perturba(10))
	c2 := conf(perturba(40))

	if c1 > c0+1e-9 {
		t.Errorf("Ruído leve aumentou a confiança: %.3f -> %.3f", c0, c1)
	}
	if c2 > c1+1e-9 {
		t.Errorf("Ruído forte aumentou a confiança: %.3f -> %.3f", c1, c2)
	}
}

func TestMatcherFallbackConfiancaFixa(t *testing.T) {
	// Dois buracos idênticos deixam o matcher ambíguo de propósito.
	bg := fundoRuidoso(300, 150, 230, 10, 21)
	pintaQuadrado(bg, 120, 55, 40, color.RGBA{30, 30, 30, 255})
	pintaQuadrado(bg, 220, 55, 40, color.RGBA{30, 30, 30, 255})
	piece := fundoRuidoso(40, 40, 230, 10, 22)

	minConf := 0.4
	res := FindSliderOffset(bg, piece, minConf, 0, -1)
	if res == nil {
		t.Fatal("Fallback deveria ter achado um dos buracos")
	}
	if res.Confidence != minConf {
		t.Errorf("Confiança do fallback deveria ser exatamente %.2f, recebi %.3f", minConf, res.Confidence)
	}
}

func TestMatcherFimAFim(t *testing.T) {
	// Cenário do mundo real: fundo claro com sombra escura do recorte em
	// (320,150) e peça quase branca que não casa com nada.
	bg := fundoRuidoso(600, 400, 230, 12, 42)
	pintaQuadrado(bg, 320, 150, 60, color.RGBA{35, 35, 35, 255})
	piece := fundoRuidoso(60, 60, 245, 6, 43)

	res := FindSliderOffset(bg, piece, 0.25, 0, 540)
	if res == nil {
		t.Fatal("Pipeline completo retornou nil")
	}
	if res.OffsetX < 310 || res.OffsetX > 330 {
		t.Errorf("Buraco em x=320, matcher apontou x=%d (tolerância ±10)", res.OffsetX)
	}
	if res.Confidence != 0.25 {
		t.Errorf("Confiança do fallback deveria ser 0.25, recebi %.3f", res.Confidence)
	}
}

func TestMatcherDeterministico(t *testing.T) {
	bg := fundoRuidoso(160, 100, 128, 180, 77)
	piece := recorte(bg, 60, 20, 30, 30)

	a := FindSliderOffset(bg, piece, 0.0, 0, -1)
	b := FindSliderOffset(bg, piece, 0.0, 0, -1)
	if a == nil || b == nil {
		t.Fatal("Matcher retornou nil")
	}
	if *a != *b {
		t.Errorf("Duas execuções divergiram: %+v vs %+v", *a, *b)
	}
}
