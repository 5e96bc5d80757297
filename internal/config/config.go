package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request deadline, must cover one LLM call
	CORSOrigins     []string      // allowed browser origins, "*" for any

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Content
	ContentDir     string        // directory holding skills.json, projects.json, about.json and context.md
	PromptFile     string        // optional prompt.yaml overriding the persona
	ReloadInterval time.Duration // periodic content reload, 0 = disabled
	WatchContent   bool          // reload on file changes
	OwnerName      string        // portfolio owner, used in prompts and emails
	OwnerEmail     string        // receives contact form relays

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string // defaults to SMTPUsername
	SMTPFromName string
	SMTPStartTLS bool
	SMTPTimeout  time.Duration

	// LLM
	LLMBaseURL         string        // OpenAI-compatible endpoint
	LLMModel           string        // ex: "gemini-2.0-flash-lite"
	LLMAPIKey          string        // inline key
	LLMAPIKeyParam     string        // SSM parameter name, used when LLMAPIKey is empty
	AWSRegion          string        // optional, for the SSM lookup
	LLMTimeout         time.Duration // per completion
	LLMBreakerFailures int           // consecutive failures that open the breaker
	LLMBreakerTimeout  time.Duration // how long the breaker stays open

	// OTP
	OTPTTL          time.Duration
	OTPMaxAttempts  int // wrong codes before the slot is closed, 0 = unlimited
	OTPReapInterval time.Duration

	// Retention
	LogRetention    time.Duration // usage and api call log window, at least 30 days
	LogTrimInterval time.Duration

	// Chat
	TrustClientHistory bool // legacy: accept client ids and history for unknown conversations
	ChatHistoryLimit   int  // trailing messages replayed to the LLM per turn

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedHosts []string // optional, restrict admin routes to specific Host headers
	AllowedCIDRS []string // optional, restrict admin routes to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("FOLIO_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("FOLIO_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("FOLIO_REQUEST_TIMEOUT", 60*time.Second),
		CORSOrigins:     splitAndTrim(getenv("FOLIO_CORS_ORIGINS", "*")),

		// Logging
		LogLevel:  getenv("FOLIO_LOG_LEVEL", "info"),
		PrettyLog: mustBool("FOLIO_PRETTY_LOG", false),

		// Content
		ContentDir:     getenv("FOLIO_CONTENT_DIR", "/app/content"),
		PromptFile:     getenv("FOLIO_PROMPT_FILE", ""),
		ReloadInterval: mustDuration("FOLIO_RELOAD_INTERVAL", time.Hour),
		WatchContent:   mustBool("FOLIO_WATCH_CONTENT", true),
		OwnerName:      requireEnv("FOLIO_OWNER_NAME"),
		OwnerEmail:     requireEnv("FOLIO_OWNER_EMAIL"),

		// SMTP
		SMTPHost:     getenv("FOLIO_SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getenvInt("FOLIO_SMTP_PORT", 587),
		SMTPUsername: requireEnv("FOLIO_SMTP_USERNAME"),
		SMTPPassword: requireEnv("FOLIO_SMTP_PASSWORD"),
		SMTPFrom:     getenv("FOLIO_SMTP_FROM", ""),
		SMTPFromName: getenv("FOLIO_SMTP_FROM_NAME", ""),
		SMTPStartTLS: mustBool("FOLIO_SMTP_STARTTLS", true),
		SMTPTimeout:  mustDuration("FOLIO_SMTP_TIMEOUT", 15*time.Second),

		// LLM
		LLMBaseURL:         getenv("FOLIO_LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMModel:           getenv("FOLIO_LLM_MODEL", "gemini-2.0-flash-lite"),
		LLMAPIKey:          getenv("FOLIO_LLM_API_KEY", ""),
		LLMAPIKeyParam:     getenv("FOLIO_LLM_API_KEY_PARAM", ""),
		AWSRegion:          getenv("FOLIO_AWS_REGION", ""),
		LLMTimeout:         mustDuration("FOLIO_LLM_TIMEOUT", 30*time.Second),
		LLMBreakerFailures: getenvInt("FOLIO_LLM_BREAKER_FAILURES", 5),
		LLMBreakerTimeout:  mustDuration("FOLIO_LLM_BREAKER_TIMEOUT", 30*time.Second),

		// OTP
		OTPTTL:          mustDuration("FOLIO_OTP_TTL", 10*time.Minute),
		OTPMaxAttempts:  getenvInt("FOLIO_OTP_MAX_ATTEMPTS", 5),
		OTPReapInterval: mustDuration("FOLIO_OTP_REAP_INTERVAL", time.Minute),

		// Retention
		LogRetention:    mustDuration("FOLIO_LOG_RETENTION", 31*24*time.Hour),
		LogTrimInterval: mustDuration("FOLIO_LOG_TRIM_INTERVAL", time.Hour),

		// Chat
		TrustClientHistory: mustBool("FOLIO_TRUST_CLIENT_HISTORY", false),
		ChatHistoryLimit:   getenvInt("FOLIO_CHAT_HISTORY_LIMIT", 40),

		// Redis settings
		RedisAddr:             requireEnv("FOLIO_REDIS_ADDR"),
		RedisUser:             getenv("FOLIO_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("FOLIO_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("FOLIO_REDIS_PASSWORD", ""),
		RedisDB:               requireEnvInt("FOLIO_REDIS_DB"),
		RedisDT:               mustDuration("FOLIO_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("FOLIO_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("FOLIO_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("FOLIO_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("FOLIO_REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("FOLIO_REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("FOLIO_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("FOLIO_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("FOLIO_REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("FOLIO_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("FOLIO_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("FOLIO_TRUST_PROXY", true),
	}

	// Validate Redis password configuration
	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: FOLIO_REDIS_PASSWORD is required when FOLIO_REDIS_PASSWORD_REQUIRED=true")
	}

	if cfg.LLMAPIKey == "" && cfg.LLMAPIKeyParam == "" {
		panic("❌ FATAL: one of FOLIO_LLM_API_KEY or FOLIO_LLM_API_KEY_PARAM must be set")
	}

	if cfg.LLMBreakerFailures < 1 {
		panic(fmt.Sprintf("❌ FATAL: FOLIO_LLM_BREAKER_FAILURES must be >= 1, got %d", cfg.LLMBreakerFailures))
	}

	if cfg.SMTPFromName == "" {
		cfg.SMTPFromName = cfg.OwnerName
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cp := *c
	cp.RedisPassword = "***REDACTED***"
	if c.RedisUser != "" {
		cp.RedisUser = "***REDACTED***"
	}
	cp.SMTPPassword = "***REDACTED***"
	if c.LLMAPIKey != "" {
		cp.LLMAPIKey = "***REDACTED***"
	}
	return cp
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func requireEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid integer value for %s: %s", key, v))
	}
	return i
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
