package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jordanhubbard/tablechat/internal/analyst"
	"github.com/jordanhubbard/tablechat/internal/api"
	"github.com/jordanhubbard/tablechat/internal/feedback"
	"github.com/jordanhubbard/tablechat/internal/provider"
	"github.com/jordanhubbard/tablechat/internal/sandbox"
	"github.com/jordanhubbard/tablechat/internal/table"
	"github.com/jordanhubbard/tablechat/internal/telemetry"
	"github.com/jordanhubbard/tablechat/internal/transcript"
	"github.com/jordanhubbard/tablechat/pkg/config"
)

const version = "0.1.0"

var configPath string

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	rootCmd := &cobra.Command{
		Use:     "tablechat",
		Short:   "Ask natural-language questions about uploaded CSV tables",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newModelsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models available at the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			p := provider.NewOpenAIProvider(cfg.Provider.Endpoint, cfg.Provider.APIKey, cfg.Provider.Timeout)
			models, err := p.GetModels(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(models)
		},
	}
}

// loadConfig reads the config file when present and falls back to defaults,
// then applies environment overrides.
func loadConfig() *config.Config {
	cfg, err := config.LoadConfigFromFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("failed to load config from %s: %v", configPath, err)
		}
		cfg = config.DefaultConfig()
	}
	cfg.ApplyEnvOverrides()
	return cfg
}

func serve() error {
	cfg := loadConfig()

	transcripts, err := buildTranscriptStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to create transcript store: %w", err)
	}
	defer transcripts.Close()

	fb, err := buildFeedbackStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to create feedback store: %w", err)
	}
	defer fb.Close()

	tables := table.NewStore()
	p := provider.NewOpenAIProvider(cfg.Provider.Endpoint, cfg.Provider.APIKey, cfg.Provider.Timeout)
	runner := sandbox.NewRunner(cfg.Execution.Timeout, cfg.Execution.MaxSteps)

	a := analyst.New(p, transcripts, tables, runner, analyst.Config{
		Model:       cfg.Provider.Model,
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
	})

	handler := api.NewServer(a, tables, fb, cfg).SetupRoutes()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTelemetry(context.Background(), "tablechat", cfg.Telemetry.Endpoint)
		if err != nil {
			log.Printf("Warning: Failed to initialize telemetry: %v", err)
		} else {
			defer func() {
				if err := shutdownTelemetry(context.Background()); err != nil {
					log.Printf("Error shutting down telemetry: %v", err)
				}
			}()
			handler = otelhttp.NewHandler(handler, "tablechat-http-server")
		}
	}

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("tablechat API listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return httpSrv.Shutdown(shutdownCtx)
}

func buildTranscriptStore(cfg *config.Config) (transcript.Store, error) {
	switch cfg.Transcript.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Transcript.RedisAddr,
			Password: cfg.Transcript.RedisPassword,
			DB:       cfg.Transcript.RedisDB,
		})
		return transcript.NewStore(transcript.StoreTypeRedis, analyst.SystemPrompt,
			transcript.WithRedisClient(client),
			transcript.WithRedisTTL(cfg.Transcript.RedisTTL),
		)
	default:
		return transcript.NewStore(transcript.StoreTypeMemory, analyst.SystemPrompt)
	}
}

func buildFeedbackStore(cfg *config.Config) (feedback.Store, error) {
	switch cfg.Feedback.Backend {
	case "postgres":
		return feedback.NewPostgresStore(cfg.Feedback.DSN)
	default:
		return feedback.NewStore(), nil
	}
}
