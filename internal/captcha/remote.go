package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Assunto do serviço externo de visão. Request-reply simples: o core NATS
// já devolve erro de "no responders" quando o serviço está fora.
const remoteSolveSubject = "jobs.captcha.slider"

const remoteSolveTimeout = 30 * time.Second

type remoteSolveRequest struct {
	BackgroundB64 string `json:"background_b64"`
	PieceB64      string `json:"piece_b64"`
}

type remoteSolveResponse struct {
	XOffset    float64 `json:"x_offset"`
	Confidence float64 `json:"confidence"`
	Success    bool    `json:"success"`
	Error      string  `json:"error"`
}

// RemoteSolver envia o puzzle para o serviço de visão via NATS quando o
// matcher local não alcança confiança suficiente.
type RemoteSolver struct {
	nc *nats.Conn
}

func NewRemoteSolver(nc *nats.Conn) *RemoteSolver {
	return &RemoteSolver{nc: nc}
}

// Solve envia as imagens cruas e devolve o offset X e a confiança relatada
// pelo serviço.
func (r *RemoteSolver) Solve(ctx context.Context, background, piece []byte) (float64, float64, error) {
	payload, err := json.Marshal(remoteSolveRequest{
		BackgroundB64: base64.StdEncoding.EncodeToString(background),
		PieceB64:      base64.StdEncoding.EncodeToString(piece),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("erro serializando requisição: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, remoteSolveTimeout)
	defer cancel()

	msg, err := r.nc.RequestWithContext(reqCtx, remoteSolveSubject, payload)
	if err != nil {
		return 0, 0, fmt.Errorf("erro consultando solver remoto: %w", err)
	}

	var resp remoteSolveResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return 0, 0, fmt.Errorf("resposta inválida do solver remoto: %w", err)
	}
	if !resp.Success {
		return 0, 0, fmt.Errorf("solver remoto recusou o puzzle: %s", resp.Error)
	}
	if resp.XOffset <= 0 {
		return 0, 0, fmt.Errorf("solver remoto devolveu offset inválido: %.2f", resp.XOffset)
	}
	return resp.XOffset, resp.Confidence, nil
}
