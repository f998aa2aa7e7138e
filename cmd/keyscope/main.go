package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/audiolens/keyscope/analysis"
	"github.com/audiolens/keyscope/logging"
	"github.com/audiolens/keyscope/server"
	"github.com/audiolens/keyscope/transcode"
)

func main() {
	var (
		addr    = flag.String("addr", "", "listen address (default :$PORT or :8000)")
		dev     = flag.Bool("dev", false, "development mode: console logging at debug level")
		ffmpeg  = flag.String("ffmpeg", "ffmpeg", "path to ffmpeg binary")
		ffprobe = flag.String("ffprobe", "ffprobe", "path to ffprobe binary")
	)
	flag.Parse()

	zl := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if *dev {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	logger := logging.NewZerologLogger(zl)
	if *dev {
		logger.SetLevel(logging.DebugLevel)
	}
	logging.SetGlobalLogger(logger)

	if *addr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8000"
		}
		*addr = ":" + port
	}

	decoderConfig := transcode.DefaultDecoderConfig()
	decoderConfig.FFmpegPath = *ffmpeg
	decoderConfig.FFprobePath = *ffprobe
	decoder := transcode.NewDecoder(decoderConfig)
	if err := decoder.ValidateConfig(); err != nil {
		// Uploads will fail until the binaries appear, but the service
		// can still answer health checks
		logger.Warn("ffmpeg tooling not available", logging.Fields{"error": err.Error()})
	}

	srv := server.New(analysis.NewAnalyzer(decoder), server.Config{
		AllowedOrigins: corsOrigins(),
	})

	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", logging.Fields{"addr": *addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}

// corsOrigins resolves allowed origins from the environment: explicit
// CORS_ORIGINS in production, the usual local dev ports otherwise
func corsOrigins() []string {
	if os.Getenv("ENVIRONMENT") == "production" {
		origins := os.Getenv("CORS_ORIGINS")
		if origins == "" {
			origins = "*"
		}
		return strings.Split(origins, ",")
	}

	return []string{
		"http://localhost:5173",
		"http://localhost:4173",
		"http://localhost:3000",
	}
}
