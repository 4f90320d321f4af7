package core

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/poe-chat/chatd/internal/config"
	"github.com/poe-chat/chatd/internal/locale"
	"github.com/poe-chat/chatd/internal/store"
	"github.com/poe-chat/chatd/internal/stream"
	"github.com/poe-chat/chatd/internal/utils"
)

const DefaultSystemInstruction = "You are a helpful AI assistant.\n" +
	"Provide clear, accurate, and concise answers.\n" +
	"Use Markdown for formatting.\n" +
	"Adopt a professional but conversational tone."

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Settings is the UI-facing view. The credential itself is never returned.
type Settings struct {
	Theme             string          `json:"theme"`
	Language          locale.Language `json:"language"`
	SystemInstruction string          `json:"systemInstruction"`
	UsePrimary        bool            `json:"usePrimary"`
	PrimaryKeySet     bool            `json:"primaryKeySet"`
}

// SettingsUpdate changes only the non-nil fields.
type SettingsUpdate struct {
	Theme             *string `json:"theme"`
	Language          *string `json:"language"`
	SystemInstruction *string `json:"systemInstruction"`
	UsePrimary        *bool   `json:"usePrimary"`
	PrimaryKey        *string `json:"primaryKey"`
}

type SettingsService struct {
	mu  sync.Mutex
	kv  KV
	cfg *config.Config
}

func NewSettingsService(kv KV, cfg *config.Config) *SettingsService {
	return &SettingsService{kv: kv, cfg: cfg}
}

func (s *SettingsService) get(key string) string {
	v, _, err := s.kv.Get(key)
	if err != nil {
		log.Printf("Failed to read setting %s: %v", key, err)
	}
	return v
}

func (s *SettingsService) set(key, value string) error {
	if err := s.kv.Set(key, value); err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

func (s *SettingsService) Get() Settings {
	theme := s.get(store.KeyTheme)
	if theme != ThemeDark {
		theme = ThemeLight
	}
	return Settings{
		Theme:             theme,
		Language:          s.Language(),
		SystemInstruction: s.systemInstruction(),
		UsePrimary:        s.usePrimary(),
		PrimaryKeySet:     s.primaryKey() != "",
	}
}

func (s *SettingsService) Language() locale.Language {
	if lang := s.get(store.KeyLanguage); lang != "" {
		return locale.Parse(lang)
	}
	return locale.Parse(s.cfg.DefaultLanguage)
}

func (s *SettingsService) systemInstruction() string {
	if v := s.get(store.KeySystemInstruction); v != "" {
		return v
	}
	return DefaultSystemInstruction
}

func (s *SettingsService) usePrimary() bool {
	v, _ := strconv.ParseBool(s.get(store.KeyUsePrimary))
	return v
}

func (s *SettingsService) primaryKey() string {
	return utils.SanitizeKey(s.get(store.KeyPrimaryAPIKey))
}

func (s *SettingsService) Update(u SettingsUpdate) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Theme != nil {
		if *u.Theme != ThemeLight && *u.Theme != ThemeDark {
			return Settings{}, fmt.Errorf("unknown theme %q", *u.Theme)
		}
		if err := s.set(store.KeyTheme, *u.Theme); err != nil {
			return Settings{}, err
		}
	}
	if u.Language != nil {
		if err := s.set(store.KeyLanguage, string(locale.Parse(*u.Language))); err != nil {
			return Settings{}, err
		}
	}
	if u.SystemInstruction != nil {
		if err := s.set(store.KeySystemInstruction, strings.TrimSpace(*u.SystemInstruction)); err != nil {
			return Settings{}, err
		}
	}
	if u.UsePrimary != nil {
		if err := s.set(store.KeyUsePrimary, strconv.FormatBool(*u.UsePrimary)); err != nil {
			return Settings{}, err
		}
	}
	if u.PrimaryKey != nil {
		key := utils.SanitizeKey(*u.PrimaryKey)
		if key == "" {
			// A cleared credential is removed rather than stored empty.
			if err := s.kv.Delete(store.KeyPrimaryAPIKey); err != nil {
				return Settings{}, fmt.Errorf("failed to delete setting %s: %w", store.KeyPrimaryAPIKey, err)
			}
		} else if err := s.set(store.KeyPrimaryAPIKey, key); err != nil {
			return Settings{}, err
		}
	}
	return s.Get(), nil
}

// BackendConfig resolves the settings into the explicit configuration of
// one backend call.
func (s *SettingsService) BackendConfig() stream.Config {
	key := s.primaryKey()
	return stream.Config{
		Choice:            stream.Choose(s.usePrimary(), key),
		PrimaryKey:        key,
		PrimaryBaseURL:    s.cfg.PrimaryBaseURL,
		UsageURL:          s.cfg.UsageURL,
		FallbackKey:       s.cfg.GeminiAPIKey,
		SystemInstruction: s.systemInstruction(),
	}
}
