package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"product-importer/app"
	"product-importer/config"
	"product-importer/controllers"
	"product-importer/dispatch"
	"product-importer/middleware"
	"product-importer/routes"
	"product-importer/services"
	"product-importer/stream"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.InitLogger(context.Background(), cfg, "api")
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := app.Bootstrap(startCtx, cfg, logger)
	if err != nil {
		cancelStart()
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}
	defer deps.Close()

	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()

	dispatcher := dispatch.New(startCtx, deps.Broker, deps.Stager, deps.Handler, logger)
	cancelStart()

	// Product events go through the dispatcher so CRUD handlers never wait on subscribers.
	productService := services.NewProductService(deps.ProductRepo, dispatcher, logger)
	streamer := stream.NewStreamer(deps.Store, cfg.StreamPollInterval, cfg.StreamMaxMisses, logger)
	validator := controllers.NewRequestValidator()

	ctrl := routes.Controllers{
		Uploads:  controllers.NewUploadController(deps.Store, dispatcher, streamer, validator, cfg.MaxFileSizeBytes(), logger),
		Products: controllers.NewProductController(productService, validator),
		Webhooks: controllers.NewWebhookController(deps.Webhooks, validator),
		Health:   controllers.NewHealthController(cfg.AppName, dispatcher.Mode(), deps.Store.Backend(), deps.PingDB, logger),

		UploadMiddleware: []gin.HandlerFunc{middleware.RateLimit(serverCtx, cfg.UploadRatePerMin, cfg.UploadRateBurst)},
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics(deps.Metrics, "product-importer"))
	r.Use(cors.New(corsConfig(cfg.CORSAllowOrigins)))
	r.Use(middleware.Timeout(30*time.Second, "/stream"))

	routes.RegisterRoutes(r, ctrl)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Product importer started",
		zap.String("port", cfg.Port),
		zap.String("dispatch_mode", dispatcher.Mode()),
		zap.String("progress_backend", deps.Store.Backend()),
	)
	<-quit
	logger.Info("Shutting down product importer...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if inproc, ok := dispatcher.(*dispatch.InProcessDispatcher); ok {
		logger.Info("Waiting for in-process imports to finish")
		inproc.Wait()
	}
	logger.Info("Server exited cleanly")
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
