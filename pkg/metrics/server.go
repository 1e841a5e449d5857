package metrics

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// MetricDef define o mapeamento entre uma chave Redis e uma métrica Prometheus.
type MetricDef struct {
	RedisKey string
	PromName string
	Help     string
	Type     string // "counter" ou "gauge"
}

// AuthMetrics são os contadores padrão do serviço de sessão.
var AuthMetrics = []MetricDef{
	{"hermes:auth_success_total", "hermes_auth_success_total", "Autorizações concluídas com sucesso", "counter"},
	{"hermes:auth_invalid_credentials_total", "hermes_auth_invalid_credentials_total", "Autorizações rejeitadas por credenciais", "counter"},
	{"hermes:auth_captcha_failed_total", "hermes_auth_captcha_failed_total", "Autorizações perdidas no captcha", "counter"},
	{"hermes:auth_service_unavailable_total", "hermes_auth_service_unavailable_total", "Falhas de rede/timeout do alvo", "counter"},
	{"hermes:auth_unknown_error_total", "hermes_auth_unknown_error_total", "Falhas não classificadas", "counter"},
	{"hermes:captcha_solved_total", "hermes_captcha_solved_total", "Captchas resolvidos localmente", "counter"},
	{"hermes:captcha_fallback_total", "hermes_captcha_fallback_total", "Resoluções via detector de buraco ou solver remoto", "counter"},
}

// Bump incrementa um contador no Redis. Erros são apenas logados: métrica
// nunca derruba o fluxo de autorização.
func Bump(ctx context.Context, rdb *redis.Client, key string) {
	if err := rdb.Incr(ctx, key).Err(); err != nil {
		log.Printf("metrics: erro incrementando %s: %v", key, err)
	}
}

// StartMetricsServer inicia um servidor HTTP que expõe métricas no formato Prometheus.
func StartMetricsServer(port string, rdb *redis.Client, metricsDefs []MetricDef) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()
		for _, m := range metricsDefs {
			val, err := rdb.Get(ctx, m.RedisKey).Result()
			if err == redis.Nil {
				val = "0"
			} else if err != nil {
				log.Printf("metrics: erro ao ler chave %s: %v", m.RedisKey, err)
				val = "0"
			}
			fmt.Fprintf(w, "# HELP %s %s\n", m.PromName, m.Help)
			fmt.Fprintf(w, "# TYPE %s %s\n", m.PromName, m.Type)
			fmt.Fprintf(w, "%s %s\n\n", m.PromName, val)
		}
	})

	log.Printf("Metrics server ouvindo em %s/metrics", port)
	if err := http.ListenAndServe(port, mux); err != nil {
		log.Fatalf("metrics: falha ao iniciar servidor: %v", err)
	}
}
