// Package main implements the docsage API server: upload a PDF, ask
// questions about it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docsage/docsage/engine/chunker"
	"github.com/docsage/docsage/engine/domain"
	"github.com/docsage/docsage/engine/embed"
	"github.com/docsage/docsage/engine/ingest"
	"github.com/docsage/docsage/engine/rag"
	"github.com/docsage/docsage/engine/session"
	"github.com/docsage/docsage/pkg/metrics"
	"github.com/docsage/docsage/pkg/mid"
	"github.com/docsage/docsage/pkg/resilience"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration.
type Config struct {
	Port           string
	CORSOrigin     string
	APIKey         string
	MaxUploadBytes int64
	UploadRate     int
	SessionTTL     time.Duration
	SweepInterval  time.Duration
	ChunkSize      int
	ChunkOverlap   int
	TopK           int
	EmbedModel     string
	ChatModel      string
}

func loadConfig() Config {
	return Config{
		Port:           envOr("PORT", "8080"),
		CORSOrigin:     envOr("CORS_ORIGIN", "*"),
		APIKey:         os.Getenv("OPENAI_API_KEY"),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", ingest.DefaultMaxBytes),
		UploadRate:     envInt("UPLOAD_RATE", 5),
		SessionTTL:     envDuration("SESSION_TTL", session.DefaultTTL),
		SweepInterval:  envDuration("SWEEP_INTERVAL", time.Minute),
		ChunkSize:      envInt("CHUNK_SIZE", chunker.DefaultSize),
		ChunkOverlap:   envInt("CHUNK_OVERLAP", chunker.DefaultOverlap),
		TopK:           envInt("TOP_K", 3),
		EmbedModel:     envOr("EMBED_MODEL", embed.DefaultModel),
		ChatModel:      envOr("CHAT_MODEL", rag.DefaultChatModel),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()
	if cfg.APIKey == "" {
		logger.Error("OPENAI_API_KEY is not set")
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	// --- Build engine services ---
	gateway := embed.NewGateway(embed.Config{
		APIKey: cfg.APIKey,
		Model:  cfg.EmbedModel,
	})

	completer, err := rag.NewOpenAICompleter(cfg.APIKey, cfg.ChatModel, 0)
	if err != nil {
		return err
	}

	store := session.New(session.Options{
		TTL:     cfg.SessionTTL,
		Logger:  logger,
		Metrics: reg,
	})
	go store.Run(ctx, cfg.SweepInterval)

	ragSvc := rag.New(gateway, completer, store, rag.Options{TopK: cfg.TopK}, logger)

	pipeline := ingest.NewPipeline(ingest.Deps{
		Embedder: gateway,
		Sessions: store,
		Chunker:  chunker.Chunker{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		MaxBytes: cfg.MaxUploadBytes,
		Logger:   logger,
		Metrics:  reg,
	})

	uploadLimiter := resilience.NewClientLimiter(cfg.UploadRate, time.Minute)

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("POST /api/upload", mid.RateLimit(uploadLimiter)(handleUpload(pipeline, cfg.MaxUploadBytes, reg, logger)))
	mux.Handle("POST /api/query", handleQuery(ragSvc, reg, logger))
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("docsage-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

// ingester and answerer are the slices of the engine the handlers need.
type ingester interface {
	Ingest(ctx context.Context, raw []byte) (string, error)
}

type answerer interface {
	Answer(ctx context.Context, sessionID, question string) (*domain.Answer, error)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// UploadResponse is the JSON response for POST /api/upload.
type UploadResponse struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func handleUpload(pipeline ingester, maxBytes int64, reg *metrics.Registry, logger *slog.Logger) http.HandlerFunc {
	uploads := reg.Counter("docsage_uploads_total", "Upload requests received.")

	return func(w http.ResponseWriter, r *http.Request) {
		uploads.Inc()

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		file, _, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(w, logger, domain.ErrPayloadTooLarge)
				return
			}
			writeErrorMessage(w, "invalid_argument", "multipart field \"file\" is required", http.StatusBadRequest)
			return
		}
		defer file.Close()

		raw, err := io.ReadAll(file)
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(w, logger, domain.ErrPayloadTooLarge)
				return
			}
			writeErrorMessage(w, "invalid_argument", "could not read upload", http.StatusBadRequest)
			return
		}

		id, err := pipeline.Ingest(r.Context(), raw)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(UploadResponse{SessionID: id, Message: "document indexed"})
	}
}

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
}

// QueryResponse is the JSON response for POST /api/query.
type QueryResponse struct {
	Text      string `json:"text"`
	Citations []int  `json:"citations"`
}

func handleQuery(ragSvc answerer, reg *metrics.Registry, logger *slog.Logger) http.HandlerFunc {
	queries := reg.Counter("docsage_queries_total", "Query requests received.")

	return func(w http.ResponseWriter, r *http.Request) {
		queries.Inc()

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorMessage(w, "invalid_argument", "invalid request body", http.StatusBadRequest)
			return
		}
		if err := domain.ValidateQuery(req.SessionID, req.Question); err != nil {
			writeError(w, logger, err)
			return
		}

		answer, err := ragSvc.Answer(r.Context(), req.SessionID, req.Question)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(QueryResponse{Text: answer.Text, Citations: answer.Citations})
	}
}

// --- Error mapping ---

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind string) int {
	switch kind {
	case "invalid_argument", "invalid_document":
		return http.StatusBadRequest
	case "no_extractable_text":
		return http.StatusUnprocessableEntity
	case "payload_too_large":
		return http.StatusRequestEntityTooLarge
	case "session_not_found":
		return http.StatusNotFound
	case "rate_limited":
		return http.StatusTooManyRequests
	case "embedder_unavailable", "completion_unavailable":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := domain.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "kind", kind, "err", err)
	}
	writeErrorMessage(w, kind, err.Error(), status)
}

func writeErrorMessage(w http.ResponseWriter, kind, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Kind: kind, Message: message}})
}
