package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "EMOTHRIVE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.admin_token", typ: kString, env: "EMOTHRIVE_ADMIN_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "openai.api_key", typ: kString, env: "EMOTHRIVE_OPENAI_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "EMOTHRIVE_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.chat_model", typ: kString, env: "EMOTHRIVE_OPENAI_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.ChatModel },
	},
	{
		key: "openai.embed_model", typ: kString, env: "EMOTHRIVE_OPENAI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.EmbedModel },
	},
	{
		key: "openai.transcription_model", typ: kString, env: "EMOTHRIVE_OPENAI_TRANSCRIPTION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.TranscriptionModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.TranscriptionModel },
	},
	{
		key: "azure.speech_key", typ: kString, env: "EMOTHRIVE_AZURE_SPEECH_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Azure.SpeechKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Azure.SpeechKey },
	},
	{
		key: "azure.speech_region", typ: kString, env: "EMOTHRIVE_AZURE_SPEECH_REGION",
		apply:   func(cfg *Config, v any) { cfg.Azure.SpeechRegion = v.(string) },
		extract: func(cfg Config) any { return cfg.Azure.SpeechRegion },
	},
	{
		key: "knowledge.dir", typ: kString, env: "EMOTHRIVE_KNOWLEDGE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.Dir },
	},
	{
		key: "knowledge.data_dir", typ: kString, env: "EMOTHRIVE_KNOWLEDGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.DataDir },
	},
	{
		key: "knowledge.top_k", typ: kInt, env: "EMOTHRIVE_KNOWLEDGE_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Knowledge.TopK },
	},
	{
		key: "knowledge.chunk_size", typ: kInt, env: "EMOTHRIVE_KNOWLEDGE_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Knowledge.ChunkSize },
	},
	{
		key: "knowledge.chunk_overlap", typ: kInt, env: "EMOTHRIVE_KNOWLEDGE_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Knowledge.ChunkOverlap },
	},
	{
		key: "knowledge.max_context_tokens", typ: kInt, env: "EMOTHRIVE_KNOWLEDGE_MAX_CONTEXT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.MaxContextTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Knowledge.MaxContextTokens },
	},
	{
		key: "chat.max_tokens", typ: kInt, env: "EMOTHRIVE_CHAT_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Chat.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.MaxTokens },
	},
	{
		key: "log.level", typ: kString, env: "EMOTHRIVE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
