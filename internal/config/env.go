// internal/config/env.go

package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"

	"sshOrchestrator/internal/models"
)

// Env zbiera nadpisania z zmiennych środowiskowych
type Env struct {
	ConfigPath string `env:"SSHORCH_CONFIG"`
	KeyFile    string `env:"SSHORCH_KEY_FILE"`
	LogLevel   string `env:"SSHORCH_LOG_LEVEL,default=info"`
	MaxRetries int    `env:"SSHORCH_MAX_RETRIES"`
	Secret     string `env:"SSHORCH_SECRET"`
}

// LoadEnv wczytuje zmienne środowiskowe z podanego lookupera (nil = środowisko procesu)
func LoadEnv(ctx context.Context, lookuper envconfig.Lookuper) (*Env, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}

	var env Env
	if err := envconfig.ProcessWith(ctx, &env, lookuper); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &env, nil
}

// Apply nakłada nadpisania na konfigurację. Wywoływane przed ApplyDefaults.
func (e *Env) Apply(cfg *models.Config) {
	if e.KeyFile != "" {
		cfg.KeyFile = e.KeyFile
	}
	if e.MaxRetries > 0 {
		for i := range cfg.Machines {
			cfg.Machines[i].MaxRetries = e.MaxRetries
		}
	}
}
