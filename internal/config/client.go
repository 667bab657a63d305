package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig configures the terminal front end.
type ClientConfig struct {
	APIURL      string
	StateDir    string
	Store       string // sqlite, file or memory
	LogFile     string
	LogLevel    string
	HTTPTimeout time.Duration
}

func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	stateDir := getEnv("LIBGATE_STATE_DIR", "")
	if stateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = os.TempDir()
		}
		stateDir = filepath.Join(base, "libgate")
	}

	cfg := &ClientConfig{
		APIURL:      getEnv("LIBGATE_API_URL", "http://localhost:8080/api"),
		StateDir:    stateDir,
		Store:       getEnv("LIBGATE_STORE", "sqlite"),
		LogFile:     getEnv("LIBGATE_LOG_FILE", filepath.Join(stateDir, "gate.log")),
		LogLevel:    getEnv("LIBGATE_LOG_LEVEL", "info"),
		HTTPTimeout: getEnvAsDuration("LIBGATE_HTTP_TIMEOUT", 15*time.Second),
	}

	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("LIBGATE_API_URL must be an absolute URL (got %q)", cfg.APIURL)
	}

	switch cfg.Store {
	case "sqlite", "file", "memory":
	default:
		return nil, fmt.Errorf("LIBGATE_STORE must be sqlite, file or memory (got %q)", cfg.Store)
	}

	return cfg, nil
}
