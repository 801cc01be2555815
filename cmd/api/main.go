package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ecolab/eco/backend/internal/config"
	"github.com/ecolab/eco/backend/internal/handler"
	"github.com/ecolab/eco/backend/internal/model/persona"
	"github.com/ecolab/eco/backend/internal/platform/logger"
	"github.com/ecolab/eco/backend/internal/service/ai"
	"github.com/ecolab/eco/backend/internal/service/chat"
	"github.com/ecolab/eco/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log.SugaredLogger.Desugar())

	if envErr != nil {
		log.Debug("no .env file loaded, using process environment", "error", envErr)
	}

	branches, err := persona.LoadBranches(cfg.Topics.File)
	if err != nil {
		log.Fatal("failed to load topic branches", "file", cfg.Topics.File, "error", err)
	}
	topics := persona.NewMemoryStore(branches)

	gateway, err := ai.NewGateway(ctx, cfg.AI, ai.Options{Directive: persona.Directive}, log)
	if err != nil {
		log.Error("failed to initialize model gateway, replies will report failure", "error", err)
		gateway = ai.Offline(ai.FailureText, log)
	} else if cfg.AI.Enabled() {
		log.Info("model gateway initialized", "model", cfg.AI.Model, "historyLimit", cfg.AI.HistoryLimit)
	}

	catalog := speech.NewCatalog()
	opts := speech.Options{
		Catalog:             catalog,
		RecognitionLanguage: cfg.Speech.ASRLanguage,
	}

	var hub *speech.Hub
	if cfg.Speech.Enabled {
		speechCfg := cfg.Speech.Model()
		hub = speech.NewHub(log)
		opts.Synthesizer = speech.NewVolcengineSynthesizer(speech.NewVolcengineTTSClient(speechCfg, log), hub)
		opts.Recognizer = speech.NewVolcengineRecognizer(speech.NewVolcengineASRClient(speechCfg, log), hub)
		log.Info("speech engines initialized", "recognitionLanguage", cfg.Speech.ASRLanguage, "voices", len(cfg.Speech.Voices))
	} else {
		log.Info("speech credentials not configured, voice input and output disabled")
	}

	voice := speech.NewSubsystem(opts, log)
	catalog.Replace(cfg.Speech.Voices)

	conversation := chat.NewConversation(gateway, voice, chat.Options{
		AutoSpeak: cfg.Chat.AutoSpeak,
		Greeting:  persona.Greeting,
	}, log)

	router := handler.NewRouter(handler.Deps{
		Topics:             topics,
		Conversation:       conversation,
		Catalog:            catalog,
		Hub:                hub,
		AttachmentMaxBytes: cfg.Chat.AttachmentMaxBytes,
		UIOrigin:           cfg.Server.UIOrigin,
		Log:                log,
	})

	if err := startServer(ctx, cfg.Server, router, log); err != nil {
		log.Error("server error", "error", err)
	}
	if hub != nil {
		hub.CloseAll()
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *logger.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("Eco backend listening", "addr", serverCfg.Addr, "uiOrigin", serverCfg.UIOrigin)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
