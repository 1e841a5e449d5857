package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config representa a estrutura completa do config.yaml.
// Todos os campos têm defaults conhecidos em tempo de compilação (ver Defaults);
// o YAML só sobrescreve o que for declarado explicitamente.
type Config struct {
	App struct {
		Env string `yaml:"env"`
	} `yaml:"app"`

	// Infraestrutura compartilhada
	Nats struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Meilisearch struct {
		Host  string `yaml:"host"`
		Key   string `yaml:"key"`
		Index string `yaml:"index"`
	} `yaml:"meilisearch"`

	Telegram struct {
		Token       string `yaml:"token"`
		AdminChatID string `yaml:"admin_chat_id"`
		// NotifyMode: "all", "errors" ou "none"
		NotifyMode string `yaml:"notify_mode"`
	} `yaml:"telegram"`

	Browser struct {
		Headless bool   `yaml:"headless"`
		Proxy    string `yaml:"proxy"`
		StateDir string `yaml:"state_dir"`
		// Porta do monitor de debug remoto (VNC/DevTools)
		MonitorPort int `yaml:"monitor_port"`
	} `yaml:"browser"`

	Session struct {
		// Passphrase usada para derivar a chave AES das sessões.
		// Obrigatória: sem ela nenhuma autorização é tentada.
		Passphrase string `yaml:"passphrase"`
		LoginURL   string `yaml:"login_url"`
		// Fragmento de URL que confirma login (ex: "/album/home")
		SuccessURLFragment string `yaml:"success_url_fragment"`
		// Seletor de elemento que só existe logado
		SuccessSelector string `yaml:"success_selector"`
		// Seletores do formulário de login
		LoginSelector    string `yaml:"login_selector"`
		PasswordSelector string `yaml:"password_selector"`
		SubmitSelector   string `yaml:"submit_selector"`
		// Cookies obrigatórios para considerar a sessão válida
		RequiredCookies []string      `yaml:"required_cookies"`
		LoginTimeoutSec int           `yaml:"login_timeout_seconds"`
		PageTimeoutSec  int           `yaml:"page_timeout_seconds"`
	} `yaml:"session"`

	Captcha CaptchaConfig `yaml:"captcha"`

	Metrics struct {
		Port string `yaml:"port"`
	} `yaml:"metrics"`
}

// CaptchaConfig agrupa seletores e limiares do solver de captcha.
// Os valores de DragDeltas e MinConfidence são empíricos (ver DESIGN.md);
// por isso ficam em config e não hardcoded.
type CaptchaConfig struct {
	ContainerSelector  string   `yaml:"container_selector"`
	BackgroundSelector string   `yaml:"background_selector"`
	PieceSelector      string   `yaml:"piece_selector"`
	SliderSelector     string   `yaml:"slider_selector"`
	SliderAltSelector  string   `yaml:"slider_alt_selector"`
	FrameURLHints      []string `yaml:"frame_url_hints"`
	FrameNames         []string `yaml:"frame_names"`
	TitleHints         []string `yaml:"title_hints"`
	DragAttrPatterns   []string `yaml:"drag_attr_patterns"`
	// Pontuação mínima para confiar em um frame candidato
	FrameScoreThreshold int `yaml:"frame_score_threshold"`

	MinConfidence float64 `yaml:"min_confidence"`
	MaxAttempts   int     `yaml:"max_attempts"`
	MaxResubmits  int     `yaml:"max_resubmits"`
	DragDeltas       []int `yaml:"drag_deltas"`
	DetectTimeoutSec int   `yaml:"detect_timeout_seconds"`

	// Diretório para screenshots de debug; vazio desabilita
	DebugDir string `yaml:"debug_dir"`
	// Habilita o fallback remoto via NATS quando o matcher local falha
	RemoteFallback bool `yaml:"remote_fallback"`
}

// Defaults retorna a configuração com todos os valores padrão preenchidos.
func Defaults() *Config {
	var cfg Config
	cfg.App.Env = "dev"
	cfg.Nats.URL = "nats://localhost:4222"
	cfg.Redis.Address = "localhost:6379"
	cfg.Meilisearch.Index = "auth_outcomes"
	cfg.Telegram.NotifyMode = "errors"
	cfg.Browser.Headless = true
	cfg.Browser.StateDir = "./browser_state"
	cfg.Browser.MonitorPort = 9222
	cfg.Session.SuccessURLFragment = "/album"
	cfg.Session.LoginSelector = `input[name="account"], input[type="tel"]`
	cfg.Session.PasswordSelector = `input[name="password"], input[type="password"]`
	cfg.Session.SubmitSelector = `button[type="submit"], button[class*="login"]`
	cfg.Session.RequiredCookies = []string{"sessionid", "token"}
	cfg.Session.LoginTimeoutSec = 25
	cfg.Session.PageTimeoutSec = 45

	cfg.Captcha = CaptchaConfig{
		ContainerSelector:  `div[class*="captcha"]`,
		BackgroundSelector: `img[class*="bg-img"], canvas[class*="bg"]`,
		PieceSelector:      `img[class*="slide-img"], canvas[class*="block"]`,
		SliderSelector:     `div[class*="slider-btn"]`,
		SliderAltSelector:  `div[class*="drag"] span, [class*="handler"]`,
		FrameURLHints:      []string{"captcha/popup", "captcha_v4"},
		FrameNames:         []string{"tcaptcha_iframe", "captcha_widget"},
		TitleHints:         []string{"验证", "captcha", "verify"},
		DragAttrPatterns:   []string{`[class*="drag"]`, `[draggable="true"]`},
		FrameScoreThreshold: 6,
		MinConfidence:      0.25,
		MaxAttempts:        3,
		MaxResubmits:       2,
		DragDeltas:         []int{0, 6, -6, 12, -12},
		DetectTimeoutSec:   8,
	}
	cfg.Metrics.Port = ":9091"
	return &cfg
}

// LoadConfig carrega o config.yaml por cima dos defaults.
// Ordem de busca: CONFIG_PATH, ./config.yaml, ./config/config.yaml, ../../config/config.yaml.
func LoadConfig() *Config {
	cfg := Defaults()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		for _, candidate := range []string{"config.yaml", "config/config.yaml", "../../config/config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
	}

	if configPath == "" {
		log.Println("Config: nenhum config.yaml encontrado. Usando defaults + env vars.")
		return cfg
	}

	absPath, _ := filepath.Abs(configPath)
	log.Printf("Carregando config de: %s", absPath)

	f, err := os.Open(configPath)
	if err != nil {
		log.Fatalf("Erro fatal lendo config: %v", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		log.Fatalf("Erro ao decodificar YAML: %v", err)
	}

	// Passphrase nunca deve ficar em YAML versionado; env tem prioridade.
	if pass := os.Getenv("HERMES_PASSPHRASE"); pass != "" {
		cfg.Session.Passphrase = pass
	}

	return cfg
}

// LoginTimeout converte o campo em segundos para time.Duration.
func (c *Config) LoginTimeout() time.Duration {
	return time.Duration(c.Session.LoginTimeoutSec) * time.Second
}

// PageTimeout converte o campo em segundos para time.Duration.
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.Session.PageTimeoutSec) * time.Second
}

// DetectTimeout converte o campo em segundos para time.Duration.
func (c *CaptchaConfig) DetectTimeout() time.Duration {
	return time.Duration(c.DetectTimeoutSec) * time.Second
}
