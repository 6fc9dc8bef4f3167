// Package config loads daemon configuration from a JSON file backend,
// .env files, and EMOTHRIVE_* environment variables.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Azure     AzureConfig
	Knowledge KnowledgeConfig
	Chat      ChatConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port       int
	AdminToken string
}

type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	EmbedModel         string
	TranscriptionModel string
}

type AzureConfig struct {
	SpeechKey    string
	SpeechRegion string
}

type KnowledgeConfig struct {
	Dir              string
	DataDir          string
	TopK             int
	ChunkSize        int
	ChunkOverlap     int
	MaxContextTokens int
}

type ChatConfig struct {
	MaxTokens int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		OpenAI: OpenAIConfig{
			ChatModel:          "gpt-4.1-mini",
			EmbedModel:         "text-embedding-3-small",
			TranscriptionModel: "whisper-1",
		},
		Azure: AzureConfig{
			SpeechRegion: "eastus",
		},
		Knowledge: KnowledgeConfig{
			Dir:              "./pdf",
			DataDir:          defaultDataDir(),
			TopK:             5,
			ChunkSize:        500,
			ChunkOverlap:     50,
			MaxContextTokens: 4000,
		},
		Chat: ChatConfig{
			MaxTokens: 400,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in ascending precedence: defaults, the JSON file
// at $XDG_CONFIG_HOME/emothrive/config.json, a .env file in the working
// directory, then EMOTHRIVE_* environment variables. A missing OpenAI API
// key is a fatal configuration error.
func Load() (Config, error) {
	// .env values become environment variables, picked up by the env pass.
	// Absence of the file is fine.
	godotenv.Load()

	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key. Set it via environment variable EMOTHRIVE_OPENAI_API_KEY")
	}

	return cfg, nil
}

// VoiceOutputConfigured reports whether speech synthesis credentials exist.
func (c Config) VoiceOutputConfigured() bool {
	return c.Azure.SpeechKey != ""
}
