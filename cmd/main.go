package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"rag-chat/internal/app"
	"rag-chat/internal/config"
	"rag-chat/internal/integrations/paramstore"
	"rag-chat/internal/logging"
	"rag-chat/internal/repository"
	"rag-chat/internal/workflow"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("RAGCHAT_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.ValidateLambda(); err != nil {
		log.Fatal("invalid lambda configuration", zap.Error(err))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal("failed to load AWS config", zap.Error(err))
	}

	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.AWS.ParamPrefix)
	if err != nil {
		log.Fatal("failed to create SSM client", zap.Error(err))
	}
	state, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.AWS.StateTable)
	if err != nil {
		log.Fatal("failed to create state client", zap.Error(err))
	}
	provider, err := app.NewProvider(ctx, cfg, params)
	if err != nil {
		log.Fatal("failed to create model provider", zap.Error(err))
	}

	// The invocation is frozen once the handler returns, so generation runs inline.
	a, err := app.New(cfg, app.Options{
		State:    state,
		Provider: provider,
		Runner:   workflow.NewInline(log.Named("workflow")),
		Registry: prometheus.NewRegistry(),
		Log:      log,
	})
	if err != nil {
		log.Fatal("failed to build app", zap.Error(err))
	}

	lambda.Start(a.Handler.Handle)
}
