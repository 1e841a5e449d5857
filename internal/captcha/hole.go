package captcha

import (
	"image"
	"sort"
)

// Faixa vertical onde os captchas reais desenham o buraco: nem no topo
// (instruções) nem no rodapé (trilho do slider).
const (
	holeBandTop    = 0.20
	holeBandBottom = 0.85
)

// Fração da altura da faixa que uma coluna precisa cobrir de pixels escuros
// para contar como evidência de buraco.
const holeEvidenceRatio = 0.15

// detectHoleX localiza o buraco do puzzle quando o template matching falha:
// a peça quase sempre é mais clara que a sombra recortada no fundo, então o
// buraco aparece como um aglomerado de colunas escuras.
//
// A busca fica restrita aos dois terços da direita (a peça começa encostada
// na esquerda) interseccionados com [minX, maxX]. Retorna a borda esquerda
// da caixa do tamanho da peça centrada na coluna de maior evidência.
func detectHoleX(bgRGBA *image.RGBA, pieceW, pieceH, minX, maxX int) (int, bool) {
	gray := boxBlur(toGray(bgRGBA))
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	if w == 0 || h == 0 || pieceW <= 0 {
		return 0, false
	}

	y0 := int(float64(h) * holeBandTop)
	y1 := int(float64(h) * holeBandBottom)
	if y1 <= y0 {
		return 0, false
	}
	bandHeight := y1 - y0

	// Limiar adaptativo: o valor no percentil 30 da faixa. Pixels estritamente
	// abaixo dele contam como escuros, o que zera a evidência em fundos chapados.
	brightness := make([]uint8, 0, bandHeight*w)
	for y := y0; y < y1; y++ {
		brightness = append(brightness, gray.Pix[y*gray.Stride:y*gray.Stride+w]...)
	}
	sort.Slice(brightness, func(i, j int) bool { return brightness[i] < brightness[j] })
	threshold := brightness[len(brightness)*30/100]

	darkCount := make([]int, w)
	for y := y0; y < y1; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x, v := range row {
			if v < threshold {
				darkCount[x]++
			}
		}
	}

	// Suaviza com média móvel na escala da peça para o pico apontar o centro
	// do buraco e não uma borda ruidosa.
	window := pieceW / 2
	if window < 3 {
		window = 3
	}
	smoothed := make([]float64, w)
	for x := 0; x < w; x++ {
		lo, hi := x-window/2, x+window/2
		if lo < 0 {
			lo = 0
		}
		if hi >= w {
			hi = w - 1
		}
		sum := 0
		for i := lo; i <= hi; i++ {
			sum += darkCount[i]
		}
		smoothed[x] = float64(sum) / float64(hi-lo+1)
	}

	// Colunas candidatas: o centro c precisa estar no terço direito e a borda
	// esquerda resultante dentro de [minX, maxX].
	half := pieceW / 2
	bestVal := -1.0
	firstBest, lastBest := -1, -1
	for c := 0; c < w; c++ {
		if c < w/3 {
			continue
		}
		offset := c - half
		if offset < minX || offset > maxX {
			continue
		}
		if smoothed[c] > bestVal {
			bestVal = smoothed[c]
			firstBest, lastBest = c, c
		} else if smoothed[c] == bestVal && c == lastBest+1 {
			// Só estende platôs contíguos; um segundo buraco idêntico mais à
			// direita não pode arrastar o centro para o meio dos dois.
			lastBest = c
		}
	}
	if firstBest < 0 {
		return 0, false
	}
	if bestVal <= float64(bandHeight)*holeEvidenceRatio {
		return 0, false
	}

	// Platôs são comuns em buracos de lados retos; fica o meio do platô.
	center := (firstBest + lastBest) / 2
	return center - half, true
}

// boxBlur aplica uma média 3x3 para tirar ruído de compressão JPEG antes da
// binarização.
func boxBlur(gray *image.Gray) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					sum += int(gray.Pix[ny*gray.Stride+nx])
					n++
				}
			}
			dst.Pix[y*dst.Stride+x] = uint8(sum / n)
		}
	}
	return dst
}
