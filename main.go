package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"quizzer-server/ai"
	"quizzer-server/config"
	"quizzer-server/db"
	"quizzer-server/handlers"
	"quizzer-server/ingestion"
	"quizzer-server/middleware"
	"quizzer-server/notify"
	"quizzer-server/scheduler"
	"quizzer-server/session"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Open the test store and make writes observable
	base, err := db.Open(ctx, db.Driver(cfg.DB.Driver), cfg.DB.URL)
	if err != nil {
		log.Fatalf("Unable to open %s database: %v", cfg.DB.Driver, err)
	}
	defer base.Close()
	store := db.NewObservable(base)

	hub := notify.NewHub(100)
	sink := notify.Multi{notify.LogSink{}, hub}

	// Session workspace follows the test list so renames and deletes reach it
	ws := session.NewWorkspace(ctx, store, sink,
		session.WithDebounce(cfg.Session.JumpDebounce),
		session.WithTick(cfg.Session.Tick))
	defer ws.Close()
	sub, err := store.Subscribe(ctx)
	if err != nil {
		log.Fatalf("Unable to subscribe to the test list: %v", err)
	}
	defer sub.Close()
	go ws.Watch(ctx, sub.C)

	// Ingestion pipeline
	if cfg.Gemini.APIKey == "" {
		log.Println("GEMINI.API_KEY is not set; PDF quiz generation will fail until it is configured")
	}
	extractor := &ingestion.PDFText{Path: cfg.PDF.ExtractorPath, Timeout: cfg.PDF.Timeout}
	generator := ai.NewGemini(cfg.Gemini.APIKey, cfg.Gemini.Endpoint, cfg.Gemini.Model, cfg.Gemini.Timeout)
	pipeline := ingestion.NewPipeline(store, extractor, generator, sink)
	defer pipeline.Close()

	// Background pruning of settled ingestion jobs
	sched := scheduler.New(pipeline, cfg.Ingestion.PruneInterval, cfg.Ingestion.JobTTL)
	if err := sched.Start(); err != nil {
		log.Fatalf("Error starting scheduler: %v", err)
	}
	defer sched.Stop()

	// Set Gin mode
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.HTMLRender = handlers.NewRenderer(cfg.Templates.Dir)
	router.MaxMultipartMemory = 64 << 20

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	handlers.Register(router, handlers.Deps{
		Store:     store,
		Workspace: ws,
		Pipeline:  pipeline,
		Hub:       hub,
	})

	// Start the server
	srv := &http.Server{
		Addr:    cfg.ServerPort,
		Handler: router,
	}

	// Goroutine to gracefully shut down the server
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("QUIZZER Server starting on %s", cfg.ServerPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Println("Server exited gracefully")
}
