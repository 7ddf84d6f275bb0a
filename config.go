package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything read from the environment at startup.
type Config struct {
	Port    string
	DevMode bool

	DBDriver string
	DSN      string
	TiDBCA   string

	CloudinaryURL    string
	CloudinaryName   string
	CloudinaryKey    string
	CloudinarySecret string

	AdminEmail        string
	AdminPassword     string
	AdminPasswordHash string
	SessionSecret     string
	SessionTTL        time.Duration
	LoginFailureDelay time.Duration

	CacheTTL    time.Duration
	CORSOrigins []string
	StaticDir   string
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}
	return configFromEnv(os.Getenv)
}

func configFromEnv(getenv func(string) string) (Config, error) {
	env := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}
	dur := func(k string, def time.Duration) time.Duration {
		raw := env(k, "")
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			log.Printf("config: invalid %s=%q, using %s", k, raw, def)
			return def
		}
		return d
	}

	cfg := Config{
		Port:              env("PORT", "8000"),
		DevMode:           isTrue(env("DEV_MODE", "")),
		DBDriver:          strings.ToLower(env("DB_DRIVER", "")),
		DSN:               env("MYSQL_DSN", env("DATABASE_URL", "")),
		TiDBCA:            env("TIDB_CA", "/etc/ssl/certs/ca-certificates.crt"),
		CloudinaryURL:     env("CLOUDINARY_URL", ""),
		CloudinaryName:    env("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryKey:     env("CLOUDINARY_API_KEY", ""),
		CloudinarySecret:  env("CLOUDINARY_API_SECRET", ""),
		AdminEmail:        env("ADMIN_EMAIL", ""),
		AdminPassword:     getenv("ADMIN_PASSWORD"),
		AdminPasswordHash: env("ADMIN_PASSWORD_HASH", ""),
		SessionSecret:     env("SESSION_SECRET", env("NEXTAUTH_SECRET", "")),
		SessionTTL:        dur("SESSION_TTL", 30*24*time.Hour),
		LoginFailureDelay: dur("LOGIN_FAILURE_DELAY", time.Second),
		CacheTTL:          dur("CACHE_TTL", 30*time.Second),
		StaticDir:         env("STATIC_DIR", ""),
	}
	for _, o := range strings.Split(env("CORS_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = inferDriver(cfg.DSN)
	}

	if cfg.DevMode {
		if cfg.AdminEmail == "" && cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
			cfg.AdminEmail, cfg.AdminPassword = "admin", "admin123"
		}
		if cfg.SessionSecret == "" {
			cfg.SessionSecret = randomSecret()
		}
		return cfg, nil
	}

	var missing []string
	if cfg.DSN == "" {
		missing = append(missing, "MYSQL_DSN or DATABASE_URL")
	}
	if !cfg.hasCloudinary() {
		missing = append(missing, "CLOUDINARY_URL")
	}
	if cfg.AdminEmail == "" || (cfg.AdminPassword == "" && cfg.AdminPasswordHash == "") {
		missing = append(missing, "ADMIN_EMAIL and ADMIN_PASSWORD")
	}
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, errors.New("env " + strings.Join(missing, ", ") +
			" must be set (or set DEV_MODE=true to run without external services)")
	}
	if cfg.DBDriver != "mysql" && cfg.DBDriver != "pgx" {
		return Config{}, errors.New("DB_DRIVER must be mysql or pgx")
	}
	return cfg, nil
}

func (c Config) hasCloudinary() bool {
	return c.CloudinaryURL != "" || (c.CloudinaryName != "" && c.CloudinaryKey != "" && c.CloudinarySecret != "")
}

func inferDriver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx"
	}
	return "mysql"
}

func isTrue(v string) bool {
	v = strings.ToLower(v)
	return v == "1" || v == "true" || v == "yes"
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("config: session secret: %v", err)
	}
	return hex.EncodeToString(buf)
}
