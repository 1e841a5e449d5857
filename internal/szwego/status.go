package szwego

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Status é a taxonomia fechada de desfechos de uma autorização. Todo caminho
// de saída do Authorizer mapeia para exatamente um destes valores; quem
// consome o resultado (fila, métricas, índice) nunca vê erro cru de driver.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusInvalidCredentials Status = "invalid_credentials"
	StatusCaptchaFailed      Status = "captcha_failed"
	StatusServiceUnavailable Status = "service_unavailable"
	StatusUnknownError       Status = "unknown_error"
)

// AllStatuses lista a taxonomia completa, na ordem de severidade.
var AllStatuses = []Status{
	StatusSuccess,
	StatusInvalidCredentials,
	StatusCaptchaFailed,
	StatusServiceUnavailable,
	StatusUnknownError,
}

// MetricKey devolve a chave Redis do contador correspondente ao status.
func (s Status) MetricKey() string {
	return "hermes:auth_" + string(s) + "_total"
}

// Failure é um erro etiquetado na origem: cada chamada de driver que pode
// falhar embrulha o erro com o status certo ali mesmo, em vez de deixar a
// classificação para um parser de strings no fim do fluxo.
type Failure struct {
	Code Status
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Code, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(code Status, format string, args ...any) *Failure {
	return &Failure{Code: code, Err: fmt.Errorf(format, args...)}
}

// Palavras-chave só usadas no último recurso, quando um erro chega sem
// etiqueta (pânico de driver recuperado, erro de biblioteca não embrulhado).
var unavailableHints = []string{
	"timeout", "deadline", "connection", "conexão", "refused", "unreachable",
	"net::", "dns", "proxy", "no responders", "reset by peer",
}

// Classify mapeia qualquer erro para a taxonomia. Erros etiquetados mandam;
// o casamento de strings existe só como rede de segurança.
func Classify(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StatusServiceUnavailable
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range unavailableHints {
		if strings.Contains(msg, hint) {
			return StatusServiceUnavailable
		}
	}
	if strings.Contains(msg, "captcha") {
		return StatusCaptchaFailed
	}
	return StatusUnknownError
}

// Result é o desfecho de uma autorização, pronto para serializar na fila.
type Result struct {
	Success bool   `json:"success"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	// CookieFile aponta o dump de cookies em disco quando o modo debug está
	// ligado; vazio em produção (os cookies só vivem cifrados no banco).
	CookieFile string `json:"cookie_file,omitempty"`
}

func failure(status Status, message string) Result {
	return Result{Success: false, Status: status, Message: message}
}
