package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/sitting"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthSecret      string
	EnableLocalAuth bool

	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	Policy          sitting.Policy
	ShutdownTimeout time.Duration
}

// CORSOrigins picks the allow-list for the current mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func FromEnv() (Config, error) {
	mode := Mode(envOr("MODE", string(ModeOffline)))
	if mode != ModeOffline && mode != ModeOnline {
		return Config{}, fmt.Errorf("MODE: unknown mode %q", mode)
	}
	policy, err := parsePolicy(envOr("SITTING_POLICY", "first_answer"))
	if err != nil {
		return Config{}, err
	}
	policy.FloorAtZero = envBool("SITTING_SCORE_FLOOR", true)

	shutdown, err := time.ParseDuration(envOr("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		AuthSecret:         envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		EnableLocalAuth:    envBool("ENABLE_LOCAL_AUTH", true),
		AdminUser:          envOr("ADMIN_USER", "admin"),
		AdminPassHash:      envOr("ADMIN_PASS_HASH", ""),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://quiz.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010"),
		Policy:             policy,
		ShutdownTimeout:    shutdown,
	}, nil
}

func parsePolicy(v string) (sitting.Policy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "first_answer", "first-answer", "":
		return sitting.FirstAnswerOnly, nil
	case "revisable":
		return sitting.Policy{Revisable: true}, nil
	default:
		return sitting.Policy{}, fmt.Errorf("SITTING_POLICY: unknown policy %q", v)
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func csvOr(k, def string) []string {
	parts := strings.Split(envOr(k, def), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
