// Command secretkeeper-server runs the English tutor behind the voice client.
//
// Usage:
//
//	secretkeeper-server [-addr :3000] [-verbose] [-quiet] [-model name]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/hammamikhairi/secretkeeper/internal/config"
	"github.com/hammamikhairi/secretkeeper/internal/llm"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
	"github.com/hammamikhairi/secretkeeper/internal/server"
	"github.com/hammamikhairi/secretkeeper/internal/storage"
	"github.com/hammamikhairi/secretkeeper/internal/tutor"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	addr := flag.String("addr", "", "listen address (default :$PORT or :3000)")
	model := flag.String("model", "", "Gemini model name (default $GEMINI_MODEL or "+llm.DefaultGeminiModel+")")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	flag.Parse()

	var overrides config.Overrides
	if *addr != "" {
		overrides.Addr = addr
	}
	if *model != "" {
		overrides.GeminiModel = model
	}
	if *verbose {
		overrides.Debug = verbose
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logLevel := logger.LevelNormal
	if cfg.Debug {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}
	log := logger.New(logLevel, os.Stderr)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := storage.NewMemoryStore(log)
	t := tutor.New(buildModel(cfg, log), store, log)
	srv := server.New(t, log,
		server.WithAllowedOrigins(cfg.AllowedOrigins),
	)

	if err := srv.Run(ctx, cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server: %v", err)
		os.Exit(1)
	}
}

// buildModel picks the hosted model: Gemini when its key is set, else the
// OpenAI-compatible endpoint, else nil so every turn reports a
// configuration error.
func buildModel(cfg *config.Config, log *logger.Logger) llm.Model {
	if cfg.GeminiKey != "" {
		var opts []llm.GeminiOption
		if cfg.GeminiModel != "" {
			opts = append(opts, llm.WithGeminiModel(cfg.GeminiModel))
		}
		m, err := llm.NewGemini(cfg.GeminiKey, log, opts...)
		if err != nil {
			log.Error("Gemini disabled: %v", err)
			return nil
		}
		log.Info("tutor model: %s", m.Name())
		return m
	}

	if cfg.OpenAIConfigured() {
		var opts []llm.OpenAIOption
		if cfg.OpenAIModel != "" {
			opts = append(opts, llm.WithOpenAIModel(cfg.OpenAIModel))
		}
		m, err := llm.NewOpenAI(cfg.OpenAIEndpoint, cfg.OpenAIKey, log, opts...)
		if err != nil {
			log.Error("OpenAI disabled: %v", err)
			return nil
		}
		log.Info("tutor model: %s", m.Name())
		return m
	}

	log.Warn("no model configured: set %s (or %s and %s)",
		config.EnvGeminiKey, config.EnvOpenAIKey, config.EnvGPTChatEndpoint)
	return nil
}
