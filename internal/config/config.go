// Package config holds process settings (defaults + CEREBRO_* environment
// overrides) and manages the persisted engine config document.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Settings is process-wide configuration resolved once at startup.
type Settings struct {
	Server    ServerSettings
	Ollama    OllamaSettings
	Retrieval RetrievalSettings
	Log       LogSettings
	DataRoot  string
}

type ServerSettings struct {
	Port int
}

type OllamaSettings struct {
	BaseURL    string
	GenModel   string
	EmbedModel string
}

type RetrievalSettings struct {
	TopK int
}

type LogSettings struct {
	Level string
}

func defaults() Settings {
	return Settings{
		Server: ServerSettings{
			Port: 4600,
		},
		Ollama: OllamaSettings{
			BaseURL:    "http://localhost:11434",
			GenModel:   "llama3.1",
			EmbedModel: "nomic-embed-text",
		},
		Retrieval: RetrievalSettings{
			TopK: 4,
		},
		Log: LogSettings{
			Level: "info",
		},
		DataRoot: defaultDataRoot(),
	}
}

// defaultDataRoot resolves $XDG_DATA_HOME/cerebro, falling back to
// ~/.local/share/cerebro.
func defaultDataRoot() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "cerebro")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cerebro"
	}
	return filepath.Join(home, ".local", "share", "cerebro")
}

// Load resolves settings from defaults and CEREBRO_* environment variables.
func Load() Settings {
	cfg := defaults()
	applyEnvOverrides(&cfg)
	return cfg
}

func applyEnvOverrides(cfg *Settings) {
	if v := os.Getenv("CEREBRO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CEREBRO_OLLAMA_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("CEREBRO_GEN_MODEL"); v != "" {
		cfg.Ollama.GenModel = v
	}
	if v := os.Getenv("CEREBRO_EMBED_MODEL"); v != "" {
		cfg.Ollama.EmbedModel = v
	}
	if v := os.Getenv("CEREBRO_TOPK"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			cfg.Retrieval.TopK = k
		}
	}
	if v := os.Getenv("CEREBRO_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CEREBRO_DATA_ROOT"); v != "" {
		cfg.DataRoot = v
	}
}
