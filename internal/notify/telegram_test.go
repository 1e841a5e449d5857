package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupNotifier(t *testing.T, mode string) (*TelegramNotifier, *int) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Erro iniciando miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sent := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sent++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	n := NewTelegramNotifier("token-fake", "12345", mode, rdb)
	n.apiBase = server.URL
	return n, &sent
}

func TestNotifyModoErrorsPulaSucesso(t *testing.T) {
	n, sent := setupNotifier(t, "errors")
	ctx := context.Background()

	n.Notify(ctx, "user1", "success", "sessão ok")
	if *sent != 0 {
		t.Errorf("Modo errors não deveria notificar sucesso, enviou %d", *sent)
	}

	n.Notify(ctx, "user1", "captcha_failed", "captcha bloqueou")
	if *sent != 1 {
		t.Errorf("Modo errors deveria notificar falha, enviou %d", *sent)
	}
}

func TestNotifyModoNoneNaoEnvia(t *testing.T) {
	n, sent := setupNotifier(t, "none")

	n.Notify(context.Background(), "user1", "unknown_error", "explodiu")
	if *sent != 0 {
		t.Errorf("Modo none não deveria enviar nada, enviou %d", *sent)
	}
}

func TestNotifyThrottlePorUsuarioEStatus(t *testing.T) {
	n, sent := setupNotifier(t, "all")
	ctx := context.Background()

	n.Notify(ctx, "user1", "captcha_failed", "primeira")
	n.Notify(ctx, "user1", "captcha_failed", "repetida")
	if *sent != 1 {
		t.Errorf("Repetição do mesmo usuário/status deveria ser suprimida, enviou %d", *sent)
	}

	// Status diferente do mesmo usuário passa
	n.Notify(ctx, "user1", "success", "agora foi")
	if *sent != 2 {
		t.Errorf("Status diferente deveria passar pelo throttle, enviou %d", *sent)
	}

	// Outro usuário também passa
	n.Notify(ctx, "user2", "captcha_failed", "outro usuário")
	if *sent != 3 {
		t.Errorf("Outro usuário deveria passar pelo throttle, enviou %d", *sent)
	}
}
