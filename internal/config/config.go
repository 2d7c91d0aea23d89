package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	LLM     LLMConfig     `mapstructure:"llm"`
	History HistoryConfig `mapstructure:"history"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type StorageConfig struct {
	Backend          string `mapstructure:"backend"` // "memory" or "firestore"
	FirestoreProject string `mapstructure:"firestore_project"`
}

type LLMConfig struct {
	Backend         string  `mapstructure:"backend"` // "mock", "vertex" or "openai"
	Model           string  `mapstructure:"model"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	UseTiktoken     bool    `mapstructure:"use_tiktoken"`

	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`

	VertexProject  string `mapstructure:"vertex_project"`
	VertexLocation string `mapstructure:"vertex_location"`
}

type HistoryConfig struct {
	NLatest   int `mapstructure:"n_latest"`
	MaxTokens int `mapstructure:"max_tokens"`
}

// Load builds the configuration from defaults, an optional config file
// and THREADLINE_* environment overrides
// (e.g. THREADLINE_STORAGE_BACKEND=firestore).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a default registration: AutomaticEnv only resolves
	// env values for keys viper already knows about.
	v.SetDefault("server.port", "8080")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.firestore_project", "")
	v.SetDefault("llm.backend", "mock")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_output_tokens", 8192)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.use_tiktoken", false)
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.vertex_project", "")
	v.SetDefault("llm.vertex_location", "us-central1")
	v.SetDefault("history.n_latest", 20)
	v.SetDefault("history.max_tokens", 2000)

	v.SetEnvPrefix("THREADLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Convenience alias commonly set as a bare env var.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.LLM.OpenAIAPIKey == "" {
		cfg.LLM.OpenAIAPIKey = key
	}

	if cfg.Storage.Backend == "firestore" && cfg.Storage.FirestoreProject == "" {
		return nil, fmt.Errorf("storage.firestore_project is required for the firestore backend")
	}
	if cfg.LLM.Backend == "vertex" && cfg.LLM.VertexProject == "" {
		return nil, fmt.Errorf("llm.vertex_project is required for the vertex backend")
	}

	return &cfg, nil
}
