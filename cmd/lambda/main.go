package main

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata" // zoneinfo for minimal runtimes

	"payment_reminder/internal/app"
	"payment_reminder/internal/infra/bootstrap"
	"payment_reminder/internal/infra/config"
	"payment_reminder/internal/infra/logger"

	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg)
	log := logger.Get().WithField("variant", cfg.Variant)

	// Built once per container; warm invocations reuse the ledger client.
	builder := bootstrap.NewBuilder(cfg, log)

	lambda.Start(func(ctx context.Context) (app.Response, error) {
		return app.Handle(ctx, builder.Build, log), nil
	})
}
