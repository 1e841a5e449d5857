package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
)

// SessionRecord é a linha de auth_sessions. Os campos *Enc chegam já
// cifrados pelo vault; este pacote nunca vê credenciais em claro.
type SessionRecord struct {
	UserID       string
	LoginEnc     string
	PasswordEnc  string
	CookiesEnc   string
	UserAgentEnc string
	LastStatus   string
}

type SessionRepository struct {
	db *pgx.Conn
}

func NewSessionRepository(databaseURL string) (*SessionRepository, error) {
	conn, err := pgx.Connect(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar no postgres: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("banco não responde: %w", err)
	}

	repo := &SessionRepository{db: conn}

	if err := repo.runMigrations(); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("falha nas migrations: %w", err)
	}

	return repo, nil
}

func (r *SessionRepository) runMigrations() error {
	log.Println("Verificando schema do banco de dados...")

	queries := []struct {
		name  string
		query string
	}{
		{
			name: "001_auth_sessions",
			query: `CREATE TABLE IF NOT EXISTS auth_sessions (
				user_id VARCHAR(100) PRIMARY KEY,
				login_enc TEXT NOT NULL,
				password_enc TEXT NOT NULL,
				cookies_enc TEXT,
				user_agent_enc TEXT,
				last_status VARCHAR(40) NOT NULL DEFAULT 'unknown_error',
				last_status_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);`,
		},
		{
			name:  "002_status_index",
			query: "CREATE INDEX IF NOT EXISTS idx_sessions_status ON auth_sessions(last_status);",
		},
	}

	for _, m := range queries {
		if _, err := r.db.Exec(context.Background(), m.query); err != nil {
			log.Printf("Erro na migration [%s]: %v", m.name, err)
		}
	}

	log.Println("Migrations concluídas.")
	return nil
}

// Save grava ou substitui a sessão de um usuário. Upsert idempotente: rodar
// a mesma autorização duas vezes não duplica nada.
func (r *SessionRepository) Save(ctx context.Context, rec SessionRecord) error {
	query := `
        INSERT INTO auth_sessions
        (user_id, login_enc, password_enc, cookies_enc, user_agent_enc, last_status, last_status_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (user_id) DO UPDATE
        SET login_enc = EXCLUDED.login_enc,
            password_enc = EXCLUDED.password_enc,
            cookies_enc = EXCLUDED.cookies_enc,
            user_agent_enc = EXCLUDED.user_agent_enc,
            last_status = EXCLUDED.last_status,
            last_status_at = NOW(),
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query,
		rec.UserID,
		rec.LoginEnc,
		rec.PasswordEnc,
		rec.CookiesEnc,
		rec.UserAgentEnc,
		rec.LastStatus,
	)
	return err
}

// UpdateStatus registra o desfecho de uma tentativa sem tocar nos blobs.
// Também é um upsert: a primeira tentativa de um usuário pode falhar antes
// de existir sessão salva.
func (r *SessionRepository) UpdateStatus(ctx context.Context, userID, status string) error {
	query := `
        INSERT INTO auth_sessions (user_id, login_enc, password_enc, last_status, last_status_at)
        VALUES ($1, '', '', $2, NOW())
        ON CONFLICT (user_id) DO UPDATE
        SET last_status = EXCLUDED.last_status,
            last_status_at = NOW()
    `
	_, err := r.db.Exec(ctx, query, userID, status)
	return err
}

// Get devolve a sessão salva, ou pgx.ErrNoRows.
func (r *SessionRepository) Get(ctx context.Context, userID string) (SessionRecord, time.Time, error) {
	query := `
        SELECT user_id, login_enc, password_enc, COALESCE(cookies_enc, ''),
               COALESCE(user_agent_enc, ''), last_status, last_status_at
        FROM auth_sessions WHERE user_id = $1
    `
	var rec SessionRecord
	var at time.Time
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&rec.UserID, &rec.LoginEnc, &rec.PasswordEnc, &rec.CookiesEnc,
		&rec.UserAgentEnc, &rec.LastStatus, &at,
	)
	return rec, at, err
}

func (r *SessionRepository) Close(ctx context.Context) {
	r.db.Close(ctx)
}
