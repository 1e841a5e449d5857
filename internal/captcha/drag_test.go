package captcha

import (
	"math"
	"testing"
	"time"
)

func TestBuildDragPathQuantidadeDePontos(t *testing.T) {
	for i := 0; i < 50; i++ {
		path := BuildDragPath(100, 200, 350, 200)
		if len(path) < dragMinSteps || len(path) > dragMaxSteps {
			t.Fatalf("Caminho com %d pontos, esperava entre %d e %d", len(path), dragMinSteps, dragMaxSteps)
		}
	}
}

func TestBuildDragPathTerminaNoDestino(t *testing.T) {
	for i := 0; i < 50; i++ {
		path := BuildDragPath(50, 120, 333.5, 118)
		last := path[len(path)-1]
		if last.X != 333.5 || last.Y != 118 {
			t.Fatalf("Último ponto deveria ser o destino exato, recebi (%.2f, %.2f)", last.X, last.Y)
		}
	}
}

func TestBuildDragPathJitterLimitado(t *testing.T) {
	startX, endX := 0.0, 300.0
	for i := 0; i < 20; i++ {
		path := BuildDragPath(startX, 100, endX, 100)
		for _, p := range path {
			if p.X < startX-jitterX || p.X > endX+jitterX {
				t.Fatalf("Ponto fora do corredor horizontal: x=%.2f", p.X)
			}
			if math.Abs(p.Y-100) > jitterY {
				t.Fatalf("Desvio vertical acima do jitter: y=%.2f", p.Y)
			}
		}
	}
}

func TestBuildDragPathProgressoMonotonico(t *testing.T) {
	// O smoothstep é crescente; com jitter de ±1.2px dois pontos consecutivos
	// nunca podem regredir mais que o dobro do jitter.
	path := BuildDragPath(0, 0, 280, 0)
	for i := 1; i < len(path); i++ {
		if path[i].X < path[i-1].X-2*jitterX {
			t.Fatalf("Regressão além do jitter no passo %d: %.2f -> %.2f", i, path[i-1].X, path[i].X)
		}
	}
}

func TestBuildDragPathDelaysNaFaixa(t *testing.T) {
	path := BuildDragPath(0, 0, 200, 0)
	for _, p := range path {
		if p.Delay < stepDelayMin || p.Delay > stepDelayMax {
			t.Fatalf("Delay fora da faixa humana: %v", p.Delay)
		}
	}
	var total time.Duration
	for _, p := range path {
		total += p.Delay
	}
	if total < time.Duration(len(path))*stepDelayMin {
		t.Errorf("Duração total inconsistente: %v", total)
	}
}
