package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	StateFile      string
	PGDSN          string
	Cooldown       time.Duration
	UnlockMemo     string
	MaxLock        bool
	FeeBps         uint16
	AccountDeposit uint64
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VAULTD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("state-file", "./data/vault_state.json")
	v.SetDefault("cooldown", 30*24*time.Hour)
	v.SetDefault("unlock-memo", "lstvault unstake")
	v.SetDefault("max-lock", false)
	v.SetDefault("fee-bps", 0)
	v.SetDefault("account-deposit", uint64(2_039_280))
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	feeBps := v.GetUint32("fee-bps")
	if feeBps > 0xFFFF {
		return Config{}, fmt.Errorf("fee-bps out of range: %d", feeBps)
	}

	cfg := Config{
		StateFile:      v.GetString("state-file"),
		PGDSN:          v.GetString("pg-dsn"),
		Cooldown:       v.GetDuration("cooldown"),
		UnlockMemo:     v.GetString("unlock-memo"),
		MaxLock:        v.GetBool("max-lock"),
		FeeBps:         uint16(feeBps),
		AccountDeposit: v.GetUint64("account-deposit"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}
