package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/loviiin/project-hermes/internal/browser"
	"github.com/loviiin/project-hermes/internal/captcha"
	"github.com/loviiin/project-hermes/internal/notify"
	"github.com/loviiin/project-hermes/internal/repository"
	"github.com/loviiin/project-hermes/internal/search"
	"github.com/loviiin/project-hermes/internal/szwego"
	"github.com/loviiin/project-hermes/pkg/config"
	"github.com/loviiin/project-hermes/pkg/metrics"
	"github.com/loviiin/project-hermes/pkg/vault"
)

// AuthJob é o payload consumido de jobs.auth.login.
type AuthJob struct {
	UserID   string `json:"user_id"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AuthResultPayload é o que volta em data.auth.result para quem enfileirou.
type AuthResultPayload struct {
	UserID  string `json:"user_id"`
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func main() {
	cfg := config.LoadConfig()

	fmt.Println("Hermes Session Worker (Subscriber) iniciando...")

	// O vault é pré-condição dura: sem passphrase, nenhum job pode ser
	// processado com segurança.
	v, err := vault.New(cfg.Session.Passphrase, "")
	if err != nil {
		log.Fatal("Erro no vault de sessões:", err)
	}

	// --- NATS ---
	nc, err := nats.Connect(cfg.Nats.URL)
	if err != nil {
		log.Fatal("Erro NATS:", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Fatal("Erro JetStream:", err)
	}
	defer nc.Close()

	// Garante que o stream AUTH exista
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "AUTH",
		Subjects: []string{"jobs.auth.login"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		log.Printf("Stream AUTH: %v (ok se já existe)", err)
	}

	// Garante que o stream DATA exista para data.auth.result
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "DATA",
		Subjects: []string{"data.auth.result"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		log.Printf("Stream DATA: %v (ok se já existe)", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	go metrics.StartMetricsServer(cfg.Metrics.Port, rdb, metrics.AuthMetrics)

	// --- Postgres ---
	repo, err := repository.NewSessionRepository(cfg.Database.URL)
	if err != nil {
		log.Fatal("Erro no repositório de sessões:", err)
	}
	defer repo.Close(context.Background())

	// --- Meilisearch ---
	var sink szwego.OutcomeSink
	if cfg.Meilisearch.Host != "" {
		sink = search.NewIndexer(cfg.Meilisearch.Host, cfg.Meilisearch.Key, cfg.Meilisearch.Index)
	}

	// --- Telegram ---
	notifier := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.AdminChatID, cfg.Telegram.NotifyMode, rdb)

	// --- Browser ---
	b, err := browser.NewBrowser(cfg)
	if err != nil {
		log.Fatal("Erro ao iniciar browser:", err)
	}
	defer b.Close()
	go browser.StartProfileSweeper()

	log.Printf("Browser iniciado com estado em: %s", cfg.Browser.StateDir)
	log.Printf("⚠️  Se algo travar, inspecione via monitor na porta %d", cfg.Browser.MonitorPort)

	// --- Authorizer ---
	var remote *captcha.RemoteSolver
	if cfg.Captcha.RemoteFallback {
		remote = captcha.NewRemoteSolver(nc)
	}
	solver := captcha.NewSolver(&cfg.Captcha, remote)
	authorizer := szwego.NewAuthorizer(cfg, b, v, solver, repo, notifier, sink)

	// --- Subscriber ---
	// Todos os workers usam o mesmo durable para balancear a carga. AckWait
	// longo porque um login com captcha e cooldown pode passar de 2 minutos.
	sub, err := js.PullSubscribe("jobs.auth.login", "session-worker-group", nats.AckWait(10*time.Minute))
	if err != nil {
		log.Fatal("Erro ao criar pull subscriber:", err)
	}
	defer sub.Unsubscribe()

	log.Println("Session Worker rodando! Consumindo jobs.auth.login sequencialmente...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nSinal recebido. Encerrando Session Worker...")
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(10*time.Second))
		if err != nil {
			if err == nats.ErrTimeout {
				continue // Nenhuma mensagem na fila
			}
			log.Printf("[Worker] Erro no Fetch: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}

		msg := msgs[0]
		var job AuthJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			log.Printf("[Worker] ❌ erro unmarshal job: %v", err)
			msg.Nak()
			continue
		}
		if job.UserID == "" {
			log.Printf("[Worker] ❌ job sem user_id, descartando")
			msg.Ack()
			continue
		}

		log.Printf("[Worker] 📥 Recebido job de autorização: %s", job.UserID)

		res := authorizer.AuthorizeUser(ctx, job.UserID, job.Login, job.Password)

		metrics.Bump(ctx, rdb, res.Status.MetricKey())
		if solver.LastState == captcha.StateSolved {
			if solver.FellBack {
				metrics.Bump(ctx, rdb, "hermes:captcha_fallback_total")
			} else {
				metrics.Bump(ctx, rdb, "hermes:captcha_solved_total")
			}
		}

		payload := AuthResultPayload{
			UserID:  job.UserID,
			Success: res.Success,
			Status:  string(res.Status),
			Message: res.Message,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("[Worker] ❌ erro marshal resultado %s: %v", job.UserID, err)
			msg.Nak()
			continue
		}

		if _, err := js.Publish("data.auth.result", data); err != nil {
			log.Printf("[Worker] ❌ erro publicar resultado %s: %v", job.UserID, err)
			// Devolve para a fila: o resultado precisa chegar em quem pediu.
			msg.Nak()
			continue
		}

		log.Printf("[Worker] ✅ Resultado de %s (%s) → data.auth.result", job.UserID, res.Status)

		// AuthorizeUser nunca retorna erro transitório: o desfecho já está
		// classificado e persistido, então o job sempre conclui com Ack.
		msg.Ack()

		// Delay anti-rate-limit entre jobs (3-8 segundos)
		time.Sleep(time.Duration(3+rand.IntN(6)) * time.Second)
	}
}
