package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/loviiin/project-hermes/pkg/config"
)

// NewBrowser cria a instância Rod com estado persistente. O UserDataDir
// mantém cookies e tokens de segurança entre execuções, o que derruba muito
// a frequência de captcha nas contas já aquecidas.
func NewBrowser(cfg *config.Config) (*rod.Browser, error) {
	path, _ := launcher.LookPath()

	l := launcher.New().
		Bin(path).
		UserDataDir(cfg.Browser.StateDir).
		Leakless(false).
		Devtools(true).
		Set("use-gl", "swiftshader"). // Software rendering para containers
		Set("disable-gpu").
		Set("no-sandbox") // Necessário em containers Linux

	if cfg.Browser.Proxy != "" {
		l = l.Proxy(cfg.Browser.Proxy)
	}

	if cfg.Browser.Headless {
		l = l.Set("headless", "new") // Evasão anti-bot
	} else {
		l = l.Headless(false) // Desenvolvimento/VNC
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("erro ao iniciar browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("erro conectando no browser: %w", err)
	}

	// Monitor para debug remoto
	go browser.ServeMonitor(fmt.Sprintf(":%d", cfg.Browser.MonitorPort))

	return browser, nil
}
