package szwego

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/loviiin/project-hermes/internal/captcha"
	"github.com/loviiin/project-hermes/internal/repository"
	"github.com/loviiin/project-hermes/pkg/config"
	"github.com/loviiin/project-hermes/pkg/vault"
)

// SessionStore persiste sessões e desfechos. Satisfeito por
// repository.SessionRepository; existe como interface para os testes.
type SessionStore interface {
	Save(ctx context.Context, rec repository.SessionRecord) error
	UpdateStatus(ctx context.Context, userID, status string) error
}

// Notifier avisa o operador sobre desfechos. A política de filtro (tudo,
// só erros, nada) mora na implementação.
type Notifier interface {
	Notify(ctx context.Context, userID, status, message string)
}

// OutcomeSink indexa desfechos para consulta posterior.
type OutcomeSink interface {
	Record(ctx context.Context, userID, status string, elapsed time.Duration)
}

// Authorizer executa o fluxo completo de login no site de álbuns: navega,
// preenche credenciais, atravessa o captcha e colhe a sessão autenticada.
type Authorizer struct {
	cfg      *config.Config
	browser  *rod.Browser
	vault    *vault.Vault
	solver   *captcha.Solver
	store    SessionStore
	notifier Notifier
	sink     OutcomeSink
}

func NewAuthorizer(cfg *config.Config, browser *rod.Browser, v *vault.Vault, solver *captcha.Solver, store SessionStore, notifier Notifier, sink OutcomeSink) *Authorizer {
	return &Authorizer{
		cfg:      cfg,
		browser:  browser,
		vault:    v,
		solver:   solver,
		store:    store,
		notifier: notifier,
		sink:     sink,
	}
}

// AuthorizeUser roda o fluxo ponta a ponta para um usuário e devolve sempre
// um Result com status da taxonomia fechada; nenhum erro ou pânico de driver
// escapa para o chamador. O desfecho é persistido, notificado e indexado
// antes do retorno.
func (a *Authorizer) AuthorizeUser(ctx context.Context, userID, login, password string) Result {
	start := time.Now()
	res := a.authorize(ctx, userID, login, password)

	if a.store != nil {
		if err := a.store.UpdateStatus(ctx, userID, string(res.Status)); err != nil {
			fmt.Printf("[Auth] Erro registrando status de %s: %v\n", userID, err)
		}
	}
	if a.notifier != nil {
		a.notifier.Notify(ctx, userID, string(res.Status), res.Message)
	}
	if a.sink != nil {
		a.sink.Record(ctx, userID, string(res.Status), time.Since(start))
	}
	return res
}

func (a *Authorizer) authorize(ctx context.Context, userID, login, password string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Auth] Pânico recuperado autorizando %s: %v\n", userID, r)
			res = failure(StatusUnknownError, fmt.Sprintf("pânico do driver: %v", r))
		}
	}()

	// Pré-condições que nem tocam a rede.
	if a.vault == nil {
		return failure(StatusUnknownError, "vault de sessões não configurado (defina a passphrase)")
	}
	if login == "" || password == "" {
		return failure(StatusInvalidCredentials, "login ou senha vazios")
	}

	fmt.Printf("[Auth] Iniciando autorização para %s\n", userID)

	page, err := stealth.Page(a.browser)
	if err != nil {
		return a.asResult(fail(StatusServiceUnavailable, "erro abrindo página: %w", err))
	}
	defer page.Close()

	nav := page.Timeout(a.cfg.PageTimeout())
	if err := nav.Navigate(a.cfg.Session.LoginURL); err != nil {
		return a.asResult(fail(StatusServiceUnavailable, "erro navegando para login: %w", err))
	}
	if err := nav.WaitLoad(); err != nil {
		return a.asResult(fail(StatusServiceUnavailable, "página de login não carregou: %w", err))
	}

	if err := a.fillCredentials(page, login, password); err != nil {
		return a.asResult(err)
	}
	if err := a.submit(page); err != nil {
		return a.asResult(err)
	}

	resubmit := func() error {
		if err := a.fillCredentials(page, login, password); err != nil {
			return err
		}
		return a.submit(page)
	}

	state, err := a.solver.Run(ctx, page, resubmit)
	if state == captcha.StateFailed {
		if err == nil {
			err = fmt.Errorf("captcha não resolvido")
		}
		return a.asResult(fail(StatusCaptchaFailed, "captcha bloqueou o login: %w", err))
	}
	if state == captcha.StateSolved {
		fmt.Printf("[Auth] Captcha resolvido para %s\n", userID)
	}

	if !a.waitLoginConfirmed(ctx, page) {
		// O site recarrega o formulário silenciosamente quando a senha está
		// errada; timeout aqui é o sinal de credencial inválida.
		return failure(StatusInvalidCredentials, "login não confirmado dentro do prazo")
	}

	cookieFile, err := a.harvestSession(ctx, page, userID, login, password)
	if err != nil {
		return a.asResult(err)
	}

	fmt.Printf("[Auth] ✅ Sessão de %s colhida e salva\n", userID)
	return Result{Success: true, Status: StatusSuccess, Message: "sessão autorizada", CookieFile: cookieFile}
}

func (a *Authorizer) fillCredentials(page *rod.Page, login, password string) error {
	loginEl, err := page.Timeout(5 * time.Second).Element(a.cfg.Session.LoginSelector)
	if err != nil {
		return fail(StatusUnknownError, "campo de login não encontrado: %w", err)
	}
	// SelectAllText faz o Input substituir qualquer resto de tentativa anterior.
	loginEl.SelectAllText()
	if err := loginEl.Input(login); err != nil {
		return fail(StatusUnknownError, "erro preenchendo login: %w", err)
	}

	passEl, err := page.Timeout(5 * time.Second).Element(a.cfg.Session.PasswordSelector)
	if err != nil {
		return fail(StatusUnknownError, "campo de senha não encontrado: %w", err)
	}
	passEl.SelectAllText()
	if err := passEl.Input(password); err != nil {
		return fail(StatusUnknownError, "erro preenchendo senha: %w", err)
	}
	return nil
}

func (a *Authorizer) submit(page *rod.Page) error {
	btn, err := page.Timeout(5 * time.Second).Element(a.cfg.Session.SubmitSelector)
	if err != nil {
		return fail(StatusUnknownError, "botão de login não encontrado: %w", err)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fail(StatusUnknownError, "erro clicando em entrar: %w", err)
	}
	return nil
}

// waitLoginConfirmed espera a URL pós-login ou o elemento que só existe
// autenticado, até o timeout de login.
func (a *Authorizer) waitLoginConfirmed(ctx context.Context, page *rod.Page) bool {
	deadline := time.Now().Add(a.cfg.LoginTimeout())
	for time.Now().Before(deadline) && ctx.Err() == nil {
		if info, err := page.Info(); err == nil {
			if a.cfg.Session.SuccessURLFragment != "" && strings.Contains(info.URL, a.cfg.Session.SuccessURLFragment) {
				return true
			}
		}
		if sel := a.cfg.Session.SuccessSelector; sel != "" {
			if has, _, err := page.Timeout(time.Second).Has(sel); err == nil && has {
				return true
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

// harvestSession colhe cookies e user-agent, valida os cookies obrigatórios
// e persiste tudo cifrado. Devolve o caminho do dump de debug, se houver.
func (a *Authorizer) harvestSession(ctx context.Context, page *rod.Page, userID, login, password string) (string, error) {
	cookies, err := page.Cookies(nil)
	if err != nil {
		return "", fail(StatusUnknownError, "erro lendo cookies: %w", err)
	}

	for _, required := range a.cfg.Session.RequiredCookies {
		found := false
		for _, c := range cookies {
			if c.Name == required {
				found = true
				break
			}
		}
		if !found {
			return "", fail(StatusUnknownError, "cookie obrigatório ausente: %s", required)
		}
	}

	userAgent := ""
	if obj, err := page.Eval(`() => navigator.userAgent`); err == nil {
		userAgent = obj.Value.Str()
	}

	cookieJSON, err := json.Marshal(cookies)
	if err != nil {
		return "", fail(StatusUnknownError, "erro serializando cookies: %w", err)
	}

	rec := repository.SessionRecord{UserID: userID, LastStatus: string(StatusSuccess)}
	if rec.LoginEnc, err = a.vault.EncryptString(login); err != nil {
		return "", fail(StatusUnknownError, "erro cifrando login: %w", err)
	}
	if rec.PasswordEnc, err = a.vault.EncryptString(password); err != nil {
		return "", fail(StatusUnknownError, "erro cifrando senha: %w", err)
	}
	if rec.CookiesEnc, err = a.vault.EncryptString(string(cookieJSON)); err != nil {
		return "", fail(StatusUnknownError, "erro cifrando cookies: %w", err)
	}
	if rec.UserAgentEnc, err = a.vault.EncryptString(userAgent); err != nil {
		return "", fail(StatusUnknownError, "erro cifrando user-agent: %w", err)
	}

	if a.store != nil {
		if err := a.store.Save(ctx, rec); err != nil {
			return "", fail(StatusUnknownError, "erro salvando sessão: %w", err)
		}
	}

	// Dump em claro só no modo debug, junto dos artefatos de captcha.
	if dir := a.cfg.Captcha.DebugDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			path := filepath.Join(dir, fmt.Sprintf("cookies_%s.json", userID))
			if err := os.WriteFile(path, cookieJSON, 0o600); err == nil {
				return path, nil
			}
		}
	}
	return "", nil
}

// asResult converte um erro etiquetado no Result correspondente.
func (a *Authorizer) asResult(err error) Result {
	status := Classify(err)
	fmt.Printf("[Auth] Falha (%s): %v\n", status, err)
	return failure(status, err.Error())
}
