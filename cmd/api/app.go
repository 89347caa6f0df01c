package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/imrishuroy/merchant-orderdesk/internal/alerts"
	"github.com/imrishuroy/merchant-orderdesk/internal/aws"
	"github.com/imrishuroy/merchant-orderdesk/internal/config"
	"github.com/imrishuroy/merchant-orderdesk/internal/handlers"
	"github.com/imrishuroy/merchant-orderdesk/internal/idempotency"
	"github.com/imrishuroy/merchant-orderdesk/internal/notify"
	"github.com/imrishuroy/merchant-orderdesk/internal/orderdb"
	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
	"github.com/imrishuroy/merchant-orderdesk/internal/poller"
	"github.com/imrishuroy/merchant-orderdesk/internal/restapi"
	"github.com/imrishuroy/merchant-orderdesk/internal/session"
	"github.com/imrishuroy/merchant-orderdesk/internal/workflow"
)

// orderAPI is what both backends provide.
type orderAPI interface {
	GetMerchantOrders(ctx context.Context, merchantID string) ([]orders.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status orders.Status) error
	GetProductsByMerchant(ctx context.Context, merchantID string) ([]orders.Product, error)
}

// app is the wired process: router plus the background pieces main runs.
type app struct {
	router   *gin.Engine
	poller   *poller.Poller
	workflow *workflow.Workflow
	closers  []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// awsLoader defers AWS client construction until some component needs it.
type awsLoader struct {
	ctx     context.Context
	clients *aws.Clients
	newFn   func(context.Context) (*aws.Clients, error)
}

func (l *awsLoader) get() (*aws.Clients, error) {
	if l.clients != nil {
		return l.clients, nil
	}
	c, err := l.newFn(l.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init aws clients: %w", err)
	}
	l.clients = c
	return c, nil
}

func newSession(cfg *config.Config) (session.Provider, io.Closer) {
	if cfg.Session.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
		return session.NewRedis(client, cfg.Session.Token), client
	}
	if cfg.Session.Token == "" {
		log.Warn().Msg("no session token configured; every route will answer login_required")
		return session.NewStatic(nil), nil
	}
	return session.NewStatic(&session.User{
		ID:         cfg.Session.UserID,
		MerchantID: cfg.Session.MerchantID,
		Email:      cfg.Session.Email,
		Token:      cfg.Session.Token,
	}), nil
}

func newOrderAPI(cfg *config.Config, sess session.Provider, awsc *awsLoader) (orderAPI, error) {
	vocab := orders.Vocabulary(cfg.Vocabulary)
	switch cfg.Backend {
	case config.BackendDynamoDB:
		clients, err := awsc.get()
		if err != nil {
			return nil, err
		}
		return orderdb.NewStore(clients.DynamoDB, cfg.Tables.Orders, cfg.Tables.Products, vocab), nil
	case config.BackendREST:
		return restapi.New(cfg.APIBaseURL, sess,
			restapi.WithVocabulary(vocab),
			restapi.WithTracer(otel.Tracer(cfg.ServiceName+"/restapi")),
		), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// newChime composes every configured notification sink. It returns nil
// when none is configured.
func newChime(cfg *config.Config, awsc *awsLoader, bell io.Writer) (poller.Chime, []io.Closer, error) {
	var chimes notify.Multi
	var closers []io.Closer
	if cfg.RunLocal && bell != nil {
		chimes = append(chimes, notify.NewBell(bell))
	}
	if cfg.QueueURL != "" {
		clients, err := awsc.get()
		if err != nil {
			return nil, nil, err
		}
		chimes = append(chimes, notify.NewSQSChime(aws.NewPublisher(clients.SQS, cfg.QueueURL)))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		w := notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, w)
		chimes = append(chimes, notify.NewKafkaChime(w))
	}
	if len(chimes) == 0 {
		return nil, closers, nil
	}
	return chimes, closers, nil
}

func newApp(ctx context.Context, cfg *config.Config, newAWS func(context.Context) (*aws.Clients, error)) (*app, error) {
	awsc := &awsLoader{ctx: ctx, newFn: newAWS}
	a := &app{}

	sess, closer := newSession(cfg)
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	api, err := newOrderAPI(cfg, sess, awsc)
	if err != nil {
		return nil, err
	}
	chime, closers, err := newChime(cfg, awsc, os.Stderr)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closers...)

	var idem *idempotency.Store
	if cfg.Tables.Idempotency != "" {
		clients, err := awsc.get()
		if err != nil {
			return nil, err
		}
		idem = idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.IdempotencyTTL)
	}

	store := orders.NewStore()
	center := alerts.NewCenter(cfg.AlertCapacity)
	a.workflow = workflow.New(store, api, center, cfg.UpdateTimeout)
	a.poller = poller.New(store, api, sess, chime, poller.Config{
		Interval:     cfg.PollInterval,
		SoundEnabled: cfg.SoundEnabled,
		FetchTimeout: cfg.FetchTimeout,
		ChimeTimeout: cfg.ChimeTimeout,
		Alerts:       center,
	})
	a.router = handlers.NewRouter(handlers.HandlerConfig{
		Store:             store,
		Workflow:          a.workflow,
		Poller:            a.poller,
		Alerts:            center,
		Session:           sess,
		Products:          api,
		Idempotency:       idem,
		LowStockThreshold: cfg.LowStockThreshold,
		WaitTimeout:       cfg.UpdateTimeout,
	})
	return a, nil
}
