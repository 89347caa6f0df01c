package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/imrishuroy/merchant-orderdesk/internal/aws"
	"github.com/imrishuroy/merchant-orderdesk/internal/config"
	"github.com/imrishuroy/merchant-orderdesk/internal/idempotency"
	"github.com/imrishuroy/merchant-orderdesk/internal/logging"
)

func main() {
	// the worker needs neither an order backend nor a session
	cfg, err := config.Read(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup("orderdesk-worker", cfg.LogLevel, cfg.RunLocal)

	clients, err := aws.NewClients(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init aws clients")
	}

	var dedupe *idempotency.Store
	if cfg.Tables.Idempotency != "" {
		dedupe = idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.IdempotencyTTL)
	}
	p := NewProcessor(aws.NewMetricPublisher(clients.CloudWatch, cfg.MetricsNamespace), dedupe)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"merchant_id":"local-merchant","order_ids":["local-order-1"],"count":1}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: testBody}},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatal().Err(err).Msg("local handler error")
		}
		return
	}

	lambda.Start(p.Handle)
}
