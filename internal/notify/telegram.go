package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const throttleTTL = 10 * time.Minute

// TelegramNotifier avisa o operador sobre desfechos de autorização via Bot
// API. O Redis segura repetições: o mesmo usuário falhando em loop vira uma
// única mensagem a cada janela de throttle.
type TelegramNotifier struct {
	httpClient *http.Client
	apiBase    string
	token      string
	chatID     string
	// mode: "all" notifica tudo, "errors" só falhas, "none" desliga.
	mode string
	rdb  *redis.Client
}

func NewTelegramNotifier(token, chatID, mode string, rdb *redis.Client) *TelegramNotifier {
	return &TelegramNotifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		apiBase: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		mode:    mode,
		rdb:     rdb,
	}
}

// Notify manda a mensagem respeitando o modo e o throttle. Nunca retorna
// erro: notificação perdida não pode derrubar o fluxo de autorização.
func (n *TelegramNotifier) Notify(ctx context.Context, userID, status, message string) {
	if n.token == "" || n.chatID == "" || n.mode == "none" {
		return
	}
	if n.mode == "errors" && status == "success" {
		return
	}

	if n.rdb != nil {
		throttleKey := fmt.Sprintf("hermes:notify:%s:%s", userID, status)
		ok, err := n.rdb.SetNX(ctx, throttleKey, 1, throttleTTL).Result()
		if err == nil && !ok {
			fmt.Printf("[Notify] Throttle ativo para %s/%s, pulando\n", userID, status)
			return
		}
	}

	text := fmt.Sprintf("🔐 Autorização %s\nUsuário: %s\nStatus: %s", statusEmoji(status), userID, status)
	if message != "" {
		text += "\nDetalhe: " + message
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	})
	if err != nil {
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		fmt.Printf("[Notify] Erro enviando para Telegram: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("[Notify] Telegram respondeu %d\n", resp.StatusCode)
	}
}

func statusEmoji(status string) string {
	if status == "success" {
		return "✅"
	}
	return "❌"
}
