package szwego

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyErroEtiquetadoManda(t *testing.T) {
	err := fail(StatusCaptchaFailed, "captcha bloqueou: %w", errors.New("timeout esperando slider"))
	// A etiqueta vence mesmo com "timeout" na mensagem.
	if got := Classify(err); got != StatusCaptchaFailed {
		t.Errorf("Esperava %s, recebi %s", StatusCaptchaFailed, got)
	}
}

func TestClassifyEtiquetaEmbrulhada(t *testing.T) {
	inner := fail(StatusInvalidCredentials, "login não confirmado")
	wrapped := fmt.Errorf("processando job: %w", inner)
	if got := Classify(wrapped); got != StatusInvalidCredentials {
		t.Errorf("errors.As deveria achar a etiqueta através do wrap, recebi %s", got)
	}
}

func TestClassifyContextoEstourado(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); got != StatusServiceUnavailable {
		t.Errorf("Deadline deveria ser %s, recebi %s", StatusServiceUnavailable, got)
	}
}

func TestClassifyFallbackPorPalavraChave(t *testing.T) {
	cases := map[string]Status{
		"net::ERR_CONNECTION_REFUSED":     StatusServiceUnavailable,
		"dial tcp: connection refused":    StatusServiceUnavailable,
		"nats: no responders available":   StatusServiceUnavailable,
		"captcha não resolvido":           StatusCaptchaFailed,
		"algo completamente inesperado":   StatusUnknownError,
	}
	for msg, want := range cases {
		if got := Classify(errors.New(msg)); got != want {
			t.Errorf("Classify(%q) = %s, esperava %s", msg, got, want)
		}
	}
}

func TestClassifyNuncaSaiDaTaxonomia(t *testing.T) {
	inputs := []error{
		nil,
		errors.New(""),
		errors.New("x"),
		fail(StatusSuccess, "ok"),
		fmt.Errorf("wrap: %w", context.Canceled),
	}
	valid := map[Status]bool{}
	for _, s := range AllStatuses {
		valid[s] = true
	}
	for _, err := range inputs {
		if got := Classify(err); !valid[got] {
			t.Errorf("Classify(%v) produziu status fora da taxonomia: %q", err, got)
		}
	}
}

func TestFailureUnwrap(t *testing.T) {
	root := errors.New("raiz")
	f := fail(StatusUnknownError, "embrulho: %w", root)
	if !errors.Is(f, root) {
		t.Error("Failure deveria expor a causa via errors.Is")
	}
}

func TestMetricKeyCobreTodosOsStatus(t *testing.T) {
	for _, s := range AllStatuses {
		want := "hermes:auth_" + string(s) + "_total"
		if s.MetricKey() != want {
			t.Errorf("MetricKey(%s) = %s, esperava %s", s, s.MetricKey(), want)
		}
	}
}
