package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/merchant-orderdesk/internal/aws"
	"github.com/imrishuroy/merchant-orderdesk/internal/config"
	"github.com/imrishuroy/merchant-orderdesk/internal/logging"
	"github.com/imrishuroy/merchant-orderdesk/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.ServiceName, cfg.LogLevel, cfg.RunLocal)
	if !cfg.RunLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := tracing.InitTracerProvider(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("init tracing")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, aws.NewClients)
	if err != nil {
		log.Fatal().Err(err).Msg("wire app")
	}

	// if RUN_LOCAL is "true", run local HTTP server for development.
	if cfg.RunLocal {
		if err := runLocal(ctx, cfg.Addr, a); err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
		a.workflow.Wait()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("flush traces")
		}
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close clients")
		}
		return
	}

	// the poller only advances while the execution environment is warm
	go func() {
		if err := a.poller.Run(ctx); err != nil {
			log.Error().Err(err).Msg("poller stopped")
		}
	}()

	adapter := ginadapter.New(a.router)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// runLocal serves the router and runs the poller until ctx ends or either fails.
func runLocal(ctx context.Context, addr string, a *app) error {
	srv := &http.Server{Addr: addr, Handler: a.router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.poller.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("running local server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
