// Command collector-mock runs an in-memory FastStats collector for local
// development.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jom-io/gorig-telemetry/src/collector"
	"github.com/jom-io/gorig-telemetry/src/logger"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8787", "listen address")
	tokens := flag.StringSlice("token", nil, "accepted bearer token, repeatable; any well-formed token when empty")
	status := flag.Int("status", 0, "force this response status for every submission")
	debug := flag.Bool("debug", false, "development logging")
	flag.Parse()

	z, err := newZap(*debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = z.Sync() }()
	logger.SetDefault(z)
	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := collector.New(*tokens...)
	s.ForceStatus(*status)
	srv := &http.Server{Addr: *addr, Handler: collector.Router(s), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithTrace(ctx)

	go func() {
		logger.Info(ctx, "Collector listening", zap.String("addr", *addr), zap.Int("tokens", len(*tokens)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "Collector stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Collector shutdown failed", zap.Error(err))
	}
}

func newZap(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
