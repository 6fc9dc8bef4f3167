package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv blanks every EMOTHRIVE_* variable the loader knows about so tests
// are not affected by the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func writeConfigFile(t *testing.T, values map[string]any) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if values == nil {
		return
	}
	path := filepath.Join(dir, "emothrive", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(values)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	writeConfigFile(t, nil)
	t.Setenv("EMOTHRIVE_OPENAI_API_KEY", "test-key")

	cfg, err := loadWith(newFileBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.OpenAI.ChatModel != "gpt-4.1-mini" {
		t.Errorf("OpenAI.ChatModel = %q", cfg.OpenAI.ChatModel)
	}
	if cfg.OpenAI.EmbedModel != "text-embedding-3-small" {
		t.Errorf("OpenAI.EmbedModel = %q", cfg.OpenAI.EmbedModel)
	}
	if cfg.OpenAI.TranscriptionModel != "whisper-1" {
		t.Errorf("OpenAI.TranscriptionModel = %q", cfg.OpenAI.TranscriptionModel)
	}
	if cfg.Knowledge.TopK != 5 {
		t.Errorf("Knowledge.TopK = %d, want 5", cfg.Knowledge.TopK)
	}
	if cfg.Knowledge.ChunkSize != 500 || cfg.Knowledge.ChunkOverlap != 50 {
		t.Errorf("chunking = %d/%d, want 500/50", cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)
	}
	if cfg.Chat.MaxTokens != 400 {
		t.Errorf("Chat.MaxTokens = %d, want 400", cfg.Chat.MaxTokens)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestFileBackendValues(t *testing.T) {
	clearEnv(t)
	writeConfigFile(t, map[string]any{
		"server.port":         5000,
		"openai.chat_model":   "gpt-4o",
		"knowledge.dir":       "/srv/pdf",
		"knowledge.top_k":     8,
		"chat.max_tokens":     600,
		"log.level":           "debug",
		"azure.speech_region": "westeurope",
	})
	t.Setenv("EMOTHRIVE_OPENAI_API_KEY", "test-key")

	cfg, err := loadWith(newFileBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.OpenAI.ChatModel != "gpt-4o" {
		t.Errorf("OpenAI.ChatModel = %q", cfg.OpenAI.ChatModel)
	}
	if cfg.Knowledge.Dir != "/srv/pdf" {
		t.Errorf("Knowledge.Dir = %q", cfg.Knowledge.Dir)
	}
	if cfg.Knowledge.TopK != 8 {
		t.Errorf("Knowledge.TopK = %d, want 8", cfg.Knowledge.TopK)
	}
	if cfg.Chat.MaxTokens != 600 {
		t.Errorf("Chat.MaxTokens = %d, want 600", cfg.Chat.MaxTokens)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Azure.SpeechRegion != "westeurope" {
		t.Errorf("Azure.SpeechRegion = %q", cfg.Azure.SpeechRegion)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	writeConfigFile(t, map[string]any{
		"server.port": 5000,
	})
	t.Setenv("EMOTHRIVE_OPENAI_API_KEY", "test-key")
	t.Setenv("EMOTHRIVE_SERVER_PORT", "6000")
	t.Setenv("EMOTHRIVE_KNOWLEDGE_TOP_K", "3")

	cfg, err := loadWith(newFileBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want env value 6000", cfg.Server.Port)
	}
	if cfg.Knowledge.TopK != 3 {
		t.Errorf("Knowledge.TopK = %d, want env value 3", cfg.Knowledge.TopK)
	}
}

func TestMissingAPIKey(t *testing.T) {
	clearEnv(t)
	writeConfigFile(t, nil)

	_, err := loadWith(newFileBackend())
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q, want it to mention missing required config", err)
	}
	if !strings.Contains(err.Error(), "EMOTHRIVE_OPENAI_API_KEY") {
		t.Errorf("error = %q, want it to name the env var", err)
	}
}

func TestSecretsNeverReadFromFile(t *testing.T) {
	clearEnv(t)
	writeConfigFile(t, map[string]any{
		"openai.api_key": "file-key",
	})

	_, err := loadWith(newFileBackend())
	if err == nil {
		t.Fatal("expected missing key error; secrets must not load from the file backend")
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	clearEnv(t)
	writeConfigFile(t, nil)
	t.Setenv("EMOTHRIVE_OPENAI_API_KEY", "test-key")

	if err := SetKey("knowledge.top_k", "9"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := SetKey("log.level", "warn"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}

	cfg, err := loadWith(newFileBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Knowledge.TopK != 9 {
		t.Errorf("Knowledge.TopK = %d, want 9", cfg.Knowledge.TopK)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestSetKeyRejectsSecretsAndUnknown(t *testing.T) {
	clearEnv(t)
	writeConfigFile(t, nil)

	if err := SetKey("openai.api_key", "oops"); err == nil {
		t.Error("expected error setting a secret key")
	}
	if err := SetKey("no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllOmitsSecrets(t *testing.T) {
	cfg := defaults()
	cfg.OpenAI.APIKey = "super-secret"

	for _, info := range ShowAll(cfg) {
		if info.Key == "openai.api_key" || info.Key == "azure.speech_key" || info.Key == "server.admin_token" {
			t.Errorf("secret key %s exposed by ShowAll", info.Key)
		}
		if strings.Contains(info.Value, "super-secret") {
			t.Errorf("secret value leaked in %s", info.Key)
		}
	}
}
