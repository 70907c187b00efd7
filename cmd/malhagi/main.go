package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jihoonkang/malhagi/internal/agent"
	"github.com/jihoonkang/malhagi/internal/assessment"
	"github.com/jihoonkang/malhagi/internal/config"
	"github.com/jihoonkang/malhagi/internal/httpapi"
	"github.com/jihoonkang/malhagi/internal/observability"
	"github.com/jihoonkang/malhagi/internal/realtime"
	"github.com/jihoonkang/malhagi/internal/report"
	"github.com/jihoonkang/malhagi/internal/reportstore"
	"github.com/jihoonkang/malhagi/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.OpenAIAPIKey == "" {
		log.Fatalf("OPENAI_API_KEY is required")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := reportstore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("report store init failed: %v", err)
	}
	defer store.Close()

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	generator := report.NewClient(report.ClientConfig{
		BaseURL:     cfg.AssessmentBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.AssessmentModel,
		Temperature: cfg.AssessmentTemperature,
		Timeout:     cfg.AssessmentTimeout,
	})
	prompts := agent.DefaultPrompts()

	newAgent := func(sess *session.Session) (*agent.Agent, error) {
		return agent.New(agent.Config{
			SessionID:             sess.ID,
			TranscriptionLanguage: sess.Language,
			Realtime: realtime.ClientConfig{
				BaseURL: cfg.RealtimeBaseURL,
				APIKey:  cfg.OpenAIAPIKey,
				Model:   cfg.RealtimeModel,
			},
			Generator: generator,
			Store:     store,
			Metrics:   metrics,
			Prompts:   prompts,
			OnPhase: func(p assessment.Phase) {
				_ = sessions.SetPhase(sess.ID, string(p))
			},
			OnTurn: func() {
				_ = sessions.RecordTurn(sess.ID)
			},
			AudioDumpDir: cfg.AudioDumpDir,
		})
	}

	api := httpapi.New(cfg, sessions, store, metrics, newAgent)
	sessions.SetExpireHook(func(s *session.Session) {
		log.Printf("session %s expired after inactivity", s.ID)
		api.StopSession(s.ID)
	})
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 30*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	api.StopAll()
	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
