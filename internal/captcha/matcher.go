package captcha

import (
	"image"
	"image/draw"
	"runtime"
	"sync"

	xdraw "golang.org/x/image/draw"
)

// Pesos do score combinado. O mapa de bordas carrega a forma do buraco;
// a cor bruta desempata fundos com texturas repetidas.
const (
	edgeWeight  = 0.7
	colorWeight = 0.3
)

// FindSliderOffset procura a posição da peça do puzzle dentro da imagem de
// fundo por template matching exaustivo sobre mapas de borda, combinado com
// diferença de cor bruta. A busca horizontal é restrita a [minX, maxX];
// maxX negativo significa "até onde a peça couber".
//
// Retorna nil quando a peça não cabe no fundo, quando o intervalo é vazio ou
// quando nem o matcher nem o detector de buraco produzem um candidato.
// O resultado é determinístico para as mesmas entradas.
func FindSliderOffset(bg, piece image.Image, minConfidence float64, minX, maxX int) *MatchResult {
	bgRGBA := toRGBA(bg)
	pieceRGBA := toRGBA(piece)

	bw, bh := bgRGBA.Rect.Dx(), bgRGBA.Rect.Dy()
	pw, ph := pieceRGBA.Rect.Dx(), pieceRGBA.Rect.Dy()
	if pw > bw || ph > bh || pw == 0 || ph == 0 {
		return nil
	}

	if minX < 0 {
		minX = 0
	}
	if maxX < 0 || maxX > bw-pw {
		maxX = bw - pw
	}
	if minX > maxX {
		return nil
	}

	bgEdge := edgeMap(toGray(bgRGBA))
	pieceEdge := edgeMap(toGray(pieceRGBA))
	mask := alphaMask(pieceRGBA)

	best, second := searchBest(bgRGBA, pieceRGBA, bgEdge, pieceEdge, mask, minX, maxX)

	confidence := 1.0
	if second > 0 {
		confidence = 1.0 - best.Score/second
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	best.Confidence = confidence

	if confidence >= minConfidence {
		return &best
	}

	// Matcher ambíguo: tenta localizar o buraco direto pela sombra escura.
	holeX, ok := detectHoleX(bgRGBA, pw, ph, minX, maxX)
	if !ok {
		return nil
	}
	fallbackConf := minConfidence
	if fallbackConf < 0.2 {
		fallbackConf = 0.2
	}
	return &MatchResult{OffsetX: holeX, OffsetY: best.OffsetY, Score: best.Score, Confidence: fallbackConf, ViaFallback: true}
}

type candidate struct {
	score float64
	x, y  int
}

// searchBest varre todas as posições candidatas e devolve a melhor posição e
// o score da segunda melhor (em qualquer outra posição). As linhas são
// distribuídas entre workers; a redução final preserva o determinismo porque
// os dois menores scores globais não dependem da ordem de chegada.
func searchBest(bgRGBA, pieceRGBA *image.RGBA, bgEdge, pieceEdge *image.Gray, mask []uint8, minX, maxX int) (MatchResult, float64) {
	bh := bgRGBA.Rect.Dy()
	ph := pieceRGBA.Rect.Dy()

	maxY := bh - ph

	workers := runtime.NumCPU()
	if workers > maxY+1 {
		workers = maxY + 1
	}
	if workers < 1 {
		workers = 1
	}

	locals := make([][2]candidate, workers)
	rows := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			best1 := candidate{score: -1}
			best2 := candidate{score: -1}
			for y := range rows {
				for x := minX; x <= maxX; x++ {
					s := scoreAt(bgRGBA, pieceRGBA, bgEdge, pieceEdge, mask, x, y)
					if best1.score < 0 || s < best1.score {
						best2 = best1
						best1 = candidate{score: s, x: x, y: y}
					} else if best2.score < 0 || s < best2.score {
						best2 = candidate{score: s, x: x, y: y}
					}
				}
			}
			locals[slot] = [2]candidate{best1, best2}
		}(w)
	}
	for y := 0; y <= maxY; y++ {
		rows <- y
	}
	close(rows)
	wg.Wait()

	global1 := candidate{score: -1}
	global2 := candidate{score: -1}
	for _, pair := range locals {
		for _, c := range pair {
			if c.score < 0 {
				continue
			}
			if global1.score < 0 || c.score < global1.score ||
				(c.score == global1.score && (c.y < global1.y || (c.y == global1.y && c.x < global1.x))) {
				global2 = global1
				global1 = c
			} else if global2.score < 0 || c.score < global2.score {
				global2 = c
			}
		}
	}

	return MatchResult{OffsetX: global1.x, OffsetY: global1.y, Score: global1.score}, global2.score
}

// scoreAt calcula o custo da peça encaixada em (x, y): média ponderada da
// diferença de bordas mais a diferença média de cor RGB, ambas em [0, 255].
// O peso de cada pixel vem do canal alfa da peça, quando ela tem transparência.
func scoreAt(bgRGBA, pieceRGBA *image.RGBA, bgEdge, pieceEdge *image.Gray, mask []uint8, x, y int) float64 {
	pw, ph := pieceRGBA.Rect.Dx(), pieceRGBA.Rect.Dy()

	var edgeSum, colorSum, weightSum int64
	for j := 0; j < ph; j++ {
		bgEdgeRow := bgEdge.Pix[(y+j)*bgEdge.Stride+x:]
		pcEdgeRow := pieceEdge.Pix[j*pieceEdge.Stride:]
		bgRow := bgRGBA.Pix[(y+j)*bgRGBA.Stride+x*4:]
		pcRow := pieceRGBA.Pix[j*pieceRGBA.Stride:]

		for i := 0; i < pw; i++ {
			w := int64(255)
			if mask != nil {
				w = int64(mask[j*pw+i])
				if w == 0 {
					continue
				}
			}

			ed := int64(bgEdgeRow[i]) - int64(pcEdgeRow[i])
			if ed < 0 {
				ed = -ed
			}
			edgeSum += ed * w

			var cd int64
			for c := 0; c < 3; c++ {
				d := int64(bgRow[i*4+c]) - int64(pcRow[i*4+c])
				if d < 0 {
					d = -d
				}
				cd += d
			}
			colorSum += cd / 3 * w

			weightSum += w
		}
	}
	if weightSum == 0 {
		return 255
	}

	edge := float64(edgeSum) / float64(weightSum)
	col := float64(colorSum) / float64(weightSum)
	return edgeWeight*edge + colorWeight*col
}

// toRGBA normaliza qualquer image.Image para RGBA com origem em (0,0).
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == image.Pt(0, 0) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return dst
}

// toGray converte para luminância (BT.601 aproximado, inteiro).
func toGray(src *image.RGBA) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*src.Stride + x*4
			r := int(src.Pix[i])
			g := int(src.Pix[i+1])
			b := int(src.Pix[i+2])
			dst.Pix[y*dst.Stride+x] = uint8((299*r + 587*g + 114*b) / 1000)
		}
	}
	return dst
}

// edgeMap aplica um filtro Sobel 3x3 e devolve a magnitude do gradiente
// limitada a 255. A borda da imagem fica zerada.
func edgeMap(gray *image.Gray) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w < 3 || h < 3 {
		return dst
	}
	at := func(x, y int) int { return int(gray.Pix[y*gray.Stride+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) +
				-2*at(x-1, y) + 2*at(x+1, y) +
				-at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if gx < 0 {
				gx = -gx
			}
			if gy < 0 {
				gy = -gy
			}
			mag := gx + gy
			if mag > 255 {
				mag = 255
			}
			dst.Pix[y*dst.Stride+x] = uint8(mag)
		}
	}
	return dst
}

// alphaMask extrai o canal alfa da peça como peso por pixel. Retorna nil
// quando a peça é totalmente opaca (o peso uniforme é implícito).
func alphaMask(pieceRGBA *image.RGBA) []uint8 {
	w, h := pieceRGBA.Rect.Dx(), pieceRGBA.Rect.Dy()
	mask := make([]uint8, w*h)
	opaque := true
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := pieceRGBA.Pix[y*pieceRGBA.Stride+x*4+3]
			mask[y*w+x] = a
			if a != 255 {
				opaque = false
			}
		}
	}
	if opaque {
		return nil
	}
	return mask
}

// Resize redimensiona para w×h com interpolação bilinear. Usado para
// normalizar screenshots capturados com device pixel ratio != 1 antes do
// matching, já que o drag acontece em coordenadas CSS.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Rect, img, img.Bounds(), xdraw.Src, nil)
	return dst
}
