package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/emothrive/emothrive/internal/api"
	"github.com/emothrive/emothrive/internal/composer"
	"github.com/emothrive/emothrive/internal/config"
	"github.com/emothrive/emothrive/internal/ingest"
	"github.com/emothrive/emothrive/internal/llm"
	"github.com/emothrive/emothrive/internal/pipeline"
	"github.com/emothrive/emothrive/internal/retrieval"
	"github.com/emothrive/emothrive/internal/session"
	"github.com/emothrive/emothrive/internal/storage"
	"github.com/emothrive/emothrive/internal/voice"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the emothrive server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running emothrive server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show emothrive system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "emothrive.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "emothrive version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	// Refuse to start twice. The health endpoint is authoritative; the PID
	// file only names the culprit.
	pidPath := pidFilePath(cfg.Knowledge.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("emothrive is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("emothrive is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Knowledge.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	var client *llm.Client
	if cfg.OpenAI.BaseURL != "" {
		client = llm.NewClientWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	} else {
		client = llm.NewClient(cfg.OpenAI.APIKey)
	}
	defer client.Close()

	// Retrieval and ingestion share the vector store and embedder.
	embedder := retrieval.NewEmbedder(client, cfg.OpenAI.EmbedModel)
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(embedder, vectorStore)
	ingestor := ingest.NewIngestor(embedder, vectorStore, store)
	ingestor.SetChunking(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)

	// Build the index on first start. A missing or empty knowledge directory
	// is not fatal; the pipeline degrades to uncontextualized prompts.
	if count, err := vectorStore.Count(); err == nil && count == 0 {
		stats, err := ingestor.Reindex(ctx, cfg.Knowledge.Dir)
		if err != nil {
			slog.Warn("initial knowledge ingestion failed", "dir", cfg.Knowledge.Dir, "error", err)
		} else {
			slog.Info("knowledge index built", "documents", stats.Documents, "chunks", stats.Chunks)
		}
	}

	var synth pipeline.Synthesizer
	if cfg.VoiceOutputConfigured() {
		vs := voice.NewSynthesizer(cfg.Azure.SpeechKey, cfg.Azure.SpeechRegion)
		defer vs.Close()
		synth = vs
		slog.Info("voice output enabled", "region", cfg.Azure.SpeechRegion)
	}

	comp := composer.New(cfg.Knowledge.MaxContextTokens)
	sessions := session.NewRegistry()
	orch := pipeline.NewOrchestrator(client, client, retriever, synth, comp, sessions, pipeline.Options{
		ChatModel:          cfg.OpenAI.ChatModel,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		MaxTokens:          cfg.Chat.MaxTokens,
		TopK:               cfg.Knowledge.TopK,
	})
	defer orch.Cleanup()

	handler := api.NewHandler(api.Deps{
		Pipeline:     orch,
		Ingestor:     ingestor,
		KnowledgeDir: cfg.Knowledge.Dir,
	}, cfg.Server.AdminToken)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio, same pipeline underneath.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Pipeline:     orch,
		Retriever:    retriever,
		Ingestor:     ingestor,
		KnowledgeDir: cfg.Knowledge.Dir,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "emothrive listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Knowledge.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("emothrive is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop emothrive (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to emothrive (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.Server.AdminToken,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var health struct {
			Status    string `json:"status"`
			Documents int    `json:"documents"`
			Chunks    int    `json:"chunks"`
		}
		if decodeErr := decodeJSON(resp, &health); decodeErr == nil && health.Status == "ok" {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			printStatus("Documents", "%d", health.Documents)
			printStatus("Chunks", "%d", health.Chunks)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Chat model", "%s", cfg.OpenAI.ChatModel)
	printStatus("Embed model", "%s", cfg.OpenAI.EmbedModel)
	if cfg.VoiceOutputConfigured() {
		printStatus("Voice output", "enabled (%s)", cfg.Azure.SpeechRegion)
	} else {
		printStatus("Voice output", "disabled")
	}
	printStatus("Knowledge dir", "%s", cfg.Knowledge.Dir)
	printStatus("Data dir", "%s", cfg.Knowledge.DataDir)
	return nil
}
