package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values. Secrets usually live
// here rather than in the config file.
const (
	EnvBotToken    = "BOT_TOKEN"
	EnvAdminIDs    = "ADMIN_IDS"
	EnvAppURL      = "APP_URL"
	EnvDatabaseURL = "DATABASE_URL"
	EnvLogLevel    = "LOG_LEVEL"
)

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment
// without replacing variables that are already set. A missing default file
// is not an error.
func LoadDotEnv(path string, required bool) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// ApplyEnv overlays environment overrides onto cfg. lookup is os.LookupEnv
// outside tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvBotToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvAdminIDs); ok {
		ids, err := parseIDList(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAdminIDs, err)
		}
		cfg.Telegram.OwnerUserIDs = ids
	}
	if v, ok := get(EnvAppURL); ok {
		cfg.Telegram.WebAppURL = v
	}
	if v, ok := get(EnvDatabaseURL); ok {
		cfg.Storage.DSN = v
		if cfg.Storage.Driver == "" {
			cfg.Storage.Driver = "postgres"
		}
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	return nil
}

func parseIDList(s string) ([]int64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", f)
		}
		out = append(out, id)
	}
	return out, nil
}
