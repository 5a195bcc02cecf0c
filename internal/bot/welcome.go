package bot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"castbot/internal/storage"
)

const welcomeKey = "welcome_config"

const (
	defaultWelcomeText   = "Welcome {name}!"
	defaultWelcomeButton = "Open app"
)

// WelcomeConfig is the /start reply. {name} in Text is replaced with the
// user's first name.
type WelcomeConfig struct {
	Text   string `json:"text"`
	Button string `json:"button"`
}

func (w WelcomeConfig) render(firstName string) string {
	return strings.ReplaceAll(w.Text, "{name}", firstName)
}

// loadWelcome falls back to the defaults for missing or unreadable values.
func loadWelcome(ctx context.Context, s storage.SettingsStore) (WelcomeConfig, error) {
	def := WelcomeConfig{Text: defaultWelcomeText, Button: defaultWelcomeButton}
	raw, err := s.GetSetting(ctx, welcomeKey)
	if errors.Is(err, storage.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	var w WelcomeConfig
	if json.Unmarshal([]byte(raw), &w) != nil {
		return def, nil
	}
	if w.Text == "" {
		w.Text = def.Text
	}
	if w.Button == "" {
		w.Button = def.Button
	}
	return w, nil
}

func saveWelcome(ctx context.Context, s storage.SettingsStore, w WelcomeConfig) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return s.SetSetting(ctx, welcomeKey, string(raw))
}
