// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	BaseURL        string        `yaml:"base_url"`   // public URL of this service, used for ipn/redirect URLs
	PortalURL      string        `yaml:"portal_url"` // customer portal receiving payment-success/payment-error
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"` // empty disables rate limiting and the sweep lock
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AdminConfig struct {
	APIKey       string        `yaml:"api_key"`
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type MoMoConfig struct {
	Endpoint    string `yaml:"endpoint"`
	PartnerCode string `yaml:"partner_code"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	OrderInfo   string `yaml:"order_info"`
	RequestType string `yaml:"request_type"`
	Lang        string `yaml:"lang"`

	// VerifySignature rejects callbacks whose HMAC signature does not match.
	// Unset means verify whenever a secret key is configured.
	VerifySignature *bool `yaml:"verify_signature"`
}

// VerifiesCallbacks resolves verify_signature against its default.
func (m MoMoConfig) VerifiesCallbacks() bool {
	if m.VerifySignature != nil {
		return *m.VerifySignature
	}
	return m.SecretKey != ""
}

type PaymentConfig struct {
	Provider     string     `yaml:"provider"` // momo|noop
	PremiumPrice int64      `yaml:"premium_price"`
	Currency     string     `yaml:"currency"`
	MoMo         MoMoConfig `yaml:"momo"`
}

type TokenConfig struct {
	BaseURL         string        `yaml:"base_url"` // empty means local generation only
	TrialEndpoint   string        `yaml:"trial_endpoint"`
	PremiumEndpoint string        `yaml:"premium_endpoint"`
	Timeout         time.Duration `yaml:"timeout"`
}

type CodesConfig struct {
	// TrialExpiryDays is the single source for trial lifetime, in the ledger and in customer copy.
	TrialExpiryDays     int           `yaml:"trial_expiry_days"`
	MaxGenerateAttempts int           `yaml:"max_generate_attempts"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
}

type ReconcileConfig struct {
	OutcomeMode   string            `yaml:"outcome_mode"` // strict|always_issue
	Outcomes      map[string]string `yaml:"outcomes"`     // result code -> issue|reject|hold
	IssuanceLease time.Duration     `yaml:"issuance_lease"`
	WaitTimeout   time.Duration     `yaml:"wait_timeout"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type BrevoConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

type EmailConfig struct {
	Provider     string        `yaml:"provider"` // smtp|brevo|noop
	SenderName   string        `yaml:"sender_name"`
	SenderEmail  string        `yaml:"sender_email"`
	SupportEmail string        `yaml:"support_email"`
	Brand        string        `yaml:"brand"`
	DownloadURL  string        `yaml:"download_url"`
	Language     string        `yaml:"language"` // en|vi
	SMTP         SMTPConfig    `yaml:"smtp"`
	Brevo        BrevoConfig   `yaml:"brevo"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBase    time.Duration `yaml:"retry_base"`
	RetryMax     time.Duration `yaml:"retry_max"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	SendTimeout  time.Duration `yaml:"send_timeout"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
	// PreviousKeys still decrypt rows sealed before a key rotation.
	PreviousKeys []string `yaml:"previous_encryption_keys"`
}

type WorkersConfig struct {
	Pool int `yaml:"pool"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Admin     AdminConfig     `yaml:"admin"`
	Payment   PaymentConfig   `yaml:"payment"`
	Token     TokenConfig     `yaml:"token"`
	Codes     CodesConfig     `yaml:"codes"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Email     EmailConfig     `yaml:"email"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Security  SecurityConfig  `yaml:"security"`
	Workers   WorkersConfig   `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. A .env file next to the working
// directory is loaded first and ${VAR} placeholders in the YAML are expanded
// from the environment before parsing.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse applies env expansion, defaults and validation to raw YAML.
func Parse(raw []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	cfg.Server.PortalURL = strings.TrimRight(cfg.Server.PortalURL, "/")
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}

	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "momo"
	}
	if cfg.Payment.PremiumPrice <= 0 {
		cfg.Payment.PremiumPrice = 199000
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "VND"
	}
	if cfg.Payment.MoMo.Endpoint == "" {
		cfg.Payment.MoMo.Endpoint = "https://test-payment.momo.vn/v2/gateway/api/create"
	}
	if cfg.Payment.MoMo.RequestType == "" {
		cfg.Payment.MoMo.RequestType = "captureWallet"
	}
	if cfg.Payment.MoMo.Lang == "" {
		cfg.Payment.MoMo.Lang = "vi"
	}
	if cfg.Payment.MoMo.OrderInfo == "" {
		cfg.Payment.MoMo.OrderInfo = "Premium activation code"
	}

	if cfg.Token.Timeout <= 0 {
		cfg.Token.Timeout = 5 * time.Second
	}
	if cfg.Token.TrialEndpoint == "" {
		cfg.Token.TrialEndpoint = "/api/token/trial"
	}
	if cfg.Token.PremiumEndpoint == "" {
		cfg.Token.PremiumEndpoint = "/api/token/premium"
	}
	cfg.Token.BaseURL = strings.TrimRight(cfg.Token.BaseURL, "/")

	if cfg.Codes.TrialExpiryDays <= 0 {
		cfg.Codes.TrialExpiryDays = 7
	}
	if cfg.Codes.MaxGenerateAttempts <= 0 {
		cfg.Codes.MaxGenerateAttempts = 5
	}
	if cfg.Codes.SweepInterval <= 0 {
		cfg.Codes.SweepInterval = time.Hour
	}

	if cfg.Reconcile.OutcomeMode == "" {
		cfg.Reconcile.OutcomeMode = "strict"
	}
	if cfg.Reconcile.IssuanceLease <= 0 {
		cfg.Reconcile.IssuanceLease = 30 * time.Second
	}
	if cfg.Reconcile.WaitTimeout <= 0 {
		cfg.Reconcile.WaitTimeout = cfg.Token.Timeout + 2*time.Second
	}

	if cfg.Email.Provider == "" {
		cfg.Email.Provider = "noop"
	}
	if cfg.Email.SenderName == "" {
		cfg.Email.SenderName = "Activation Service"
	}
	if cfg.Email.Language == "" {
		cfg.Email.Language = "en"
	}
	if cfg.Email.SMTP.Port == 0 {
		cfg.Email.SMTP.Port = 587
	}
	if cfg.Email.Brevo.APIURL == "" {
		cfg.Email.Brevo.APIURL = "https://api.brevo.com/v3/smtp/email"
	}
	if cfg.Email.MaxAttempts <= 0 {
		cfg.Email.MaxAttempts = 6
	}
	if cfg.Email.RetryBase <= 0 {
		cfg.Email.RetryBase = 30 * time.Second
	}
	if cfg.Email.RetryMax <= 0 {
		cfg.Email.RetryMax = time.Hour
	}
	if cfg.Email.PollInterval <= 0 {
		cfg.Email.PollInterval = 30 * time.Second
	}
	if cfg.Email.BatchSize <= 0 {
		cfg.Email.BatchSize = 20
	}
	if cfg.Email.SendTimeout <= 0 {
		cfg.Email.SendTimeout = 15 * time.Second
	}

	if cfg.RateLimit.Requests <= 0 {
		cfg.RateLimit.Requests = 10
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.Workers.Pool <= 0 {
		cfg.Workers.Pool = 4
	}
}

func (cfg *Config) validate() error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	switch cfg.Reconcile.OutcomeMode {
	case "strict", "always_issue":
	default:
		return fmt.Errorf("reconcile.outcome_mode must be strict or always_issue, got %q", cfg.Reconcile.OutcomeMode)
	}
	for code, action := range cfg.Reconcile.Outcomes {
		switch action {
		case "issue", "reject", "hold":
		default:
			return fmt.Errorf("reconcile.outcomes[%s]: unknown action %q", code, action)
		}
	}
	switch cfg.Payment.Provider {
	case "noop":
	case "momo":
		m := cfg.Payment.MoMo
		if m.PartnerCode == "" || m.AccessKey == "" || m.SecretKey == "" {
			return errors.New("payment.momo partner_code, access_key and secret_key are required")
		}
		if cfg.Server.BaseURL == "" {
			return errors.New("server.base_url is required for momo callbacks")
		}
	default:
		return fmt.Errorf("payment.provider %q is not supported", cfg.Payment.Provider)
	}
	switch cfg.Email.Provider {
	case "noop":
	case "smtp":
		if cfg.Email.SMTP.Host == "" {
			return errors.New("email.smtp.host is required")
		}
	case "brevo":
		if cfg.Email.Brevo.APIKey == "" {
			return errors.New("email.brevo.api_key is required")
		}
	default:
		return fmt.Errorf("email.provider %q is not supported", cfg.Email.Provider)
	}
	if cfg.Email.Provider != "noop" && cfg.Email.SenderEmail == "" {
		return errors.New("email.sender_email is required")
	}
	if k := cfg.Security.EncryptionKey; k != "" && !validAESKey(k) {
		return errors.New("security.encryption_key must be 16, 24 or 32 bytes")
	}
	for _, k := range cfg.Security.PreviousKeys {
		if !validAESKey(k) {
			return errors.New("security.previous_encryption_keys entries must be 16, 24 or 32 bytes")
		}
	}
	if cfg.Admin.JWTSecret != "" && cfg.Admin.APIKey == "" {
		return errors.New("admin.api_key is required when admin.jwt_secret is set")
	}
	return nil
}

func validAESKey(k string) bool {
	n := len(k)
	return n == 16 || n == 24 || n == 32
}
