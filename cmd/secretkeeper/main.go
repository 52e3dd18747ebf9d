// SecretKeeper 4U is a voice English tutor for the terminal.
//
// Usage:
//
//	secretkeeper [-server url] [-verbose] [-quiet] [-no-listen] [-no-speech]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/secretkeeper/internal/client"
	"github.com/hammamikhairi/secretkeeper/internal/config"
	"github.com/hammamikhairi/secretkeeper/internal/conversation"
	"github.com/hammamikhairi/secretkeeper/internal/display"
	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
	"github.com/hammamikhairi/secretkeeper/internal/speech"
	"github.com/hammamikhairi/secretkeeper/internal/voice"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	serverURL := flag.String("server", "", "chat server base URL (default $SECRETKEEPER_URL or "+config.DefaultServerURL+")")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", ".secretkeeper-logs/secretkeeper.log", "file to write logs to (use \"stderr\" to log to console)")
	noSpeech := flag.Bool("no-speech", false, "disable spoken replies even if Azure keys are set")
	noListen := flag.Bool("no-listen", false, "disable voice input")
	diskCache := flag.Bool("disk-cache", true, "persist TTS audio cache to disk (reads from disk even when false)")
	cacheDir := flag.String("cache-dir", ".secretkeeper-cache", "directory for persistent TTS audio cache")
	whisperBin := flag.String("whisper-bin", "whisper-cli", "path to the whisper-cpp CLI binary")
	whisperModel := flag.String("whisper-model", "bin/ggml-small.bin", "path to the Whisper GGML model file")
	recordSecs := flag.Int("record-secs", 1, "seconds per voice recording chunk")
	settle := flag.Duration("settle", 0, "wait after a final transcript before sending it (default 700ms)")
	conversationID := flag.String("conversation", "", "conversation id sent to the server (default: random)")
	flag.Parse()

	var overrides config.Overrides
	if *serverURL != "" {
		overrides.ServerURL = serverURL
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

	// Direct logs to a file by default so the prompt stays clean.
	var logOut io.Writer = os.Stderr
	if *logFile != "" && *logFile != "stderr" {
		if dir := filepath.Dir(*logFile); dir != "" && dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", *logFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	// Redirect Go's default log package (used by the whisper
	// transcriber) to the same output so it doesn't spam the terminal.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(logLevel, logOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := buildSpeech(cfg, log, speechFlags{
		noSpeech:     *noSpeech,
		noListen:     *noListen,
		diskCache:    *diskCache,
		cacheDir:     *cacheDir,
		whisperBin:   *whisperBin,
		whisperModel: *whisperModel,
		chunk:        time.Duration(*recordSecs) * time.Second,
	})

	if *conversationID == "" {
		*conversationID = uuid.NewString()
	}
	chat := client.New(cfg.ServerURL, log, client.WithConversationID(*conversationID))
	log.Info("chat server %s (conversation %s)", cfg.ServerURL, *conversationID)

	var coordOpts []voice.Option
	if *settle > 0 {
		coordOpts = append(coordOpts, voice.WithSettleWindow(*settle))
	}
	var speechSvc domain.SpeechService
	if svc != nil {
		speechSvc = svc
	}
	coord := voice.New(speechSvc, chat, log, coordOpts...)
	defer coord.Close()

	ui := display.NewUI()
	app := &cliApp{
		coord:    coord,
		chat:     chat,
		parser:   conversation.NewKeywordParser(log),
		notifier: conversation.NewCLINotifier(log, ui.Printf),
		log:      log,
		ui:       ui,
	}

	fmt.Println(display.RenderBanner())
	for _, line := range display.WelcomeLines(coord.Capabilities()) {
		fmt.Println(display.BannerStyle.Render("  " + line))
	}
	fmt.Println()

	// Run app logic in a background goroutine.
	go func() {
		ui.WaitReady()
		app.run(ctx)
		ui.Quit()
	}()

	// Bubble Tea owns the terminal and blocks until quit.
	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
	cancel()
}

type speechFlags struct {
	noSpeech     bool
	noListen     bool
	diskCache    bool
	cacheDir     string
	whisperBin   string
	whisperModel string
	chunk        time.Duration
}

// buildSpeech wires the local whisper recognizer and the Azure
// synthesizer. It returns nil when neither is usable.
func buildSpeech(cfg *config.Config, log *logger.Logger, f speechFlags) *speech.Service {
	var rec speech.RecognitionEngine
	if !f.noListen {
		w := speech.NewWhisperRecognizer(f.whisperBin, f.whisperModel, log,
			speech.WithChunkDuration(f.chunk),
		)
		if err := w.Check(); err != nil {
			log.Warn("voice input disabled: %v", err)
		} else {
			rec = w
			log.Info("voice input enabled (bin=%s, model=%s, chunk=%s)", f.whisperBin, f.whisperModel, f.chunk)
		}
	}

	var syn speech.SynthesisEngine
	switch {
	case f.noSpeech:
	case !cfg.SpeechSynthesisConfigured():
		log.Info("TTS disabled: set %s and %s env vars to enable", config.EnvAzureSpeechKey, config.EnvAzureSpeechRegion)
	default:
		player, err := speech.NewPlayer(log)
		if err != nil {
			log.Error("audio player init failed, speech disabled: %v", err)
			break
		}
		tts := speech.NewAzureClient(cfg.AzureSpeechKey, cfg.AzureSpeechRegion, log)
		cache := speech.NewAudioCache(f.cacheDir, f.diskCache, log)
		syn = speech.NewAzureSynthesizer(tts, player, log, speech.WithCache(cache))
		log.Info("TTS enabled (region=%s)", cfg.AzureSpeechRegion)
	}

	svc, err := speech.New(rec, syn, log)
	if err != nil {
		if errors.Is(err, domain.ErrNoSpeechHost) {
			log.Warn("text-only mode: %v", err)
		} else {
			log.Error("speech: %v", err)
		}
		return nil
	}
	return svc
}
