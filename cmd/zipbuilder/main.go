package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/picklr-io/zipbuilder/internal/build"
	"github.com/picklr-io/zipbuilder/internal/config"
	"github.com/picklr-io/zipbuilder/internal/handler"
	"github.com/picklr-io/zipbuilder/internal/logging"
	"github.com/picklr-io/zipbuilder/internal/notify"
	"github.com/picklr-io/zipbuilder/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	policy := cfg.RetryPolicy()
	store, err := storage.NewS3Store(context.Background(), storage.S3Options{
		Region:   cfg.Region,
		Endpoint: cfg.S3Endpoint,
	}, policy)
	if err != nil {
		return err
	}

	runner, err := build.NewRunner(cfg.BuildRunner)
	if err != nil {
		return err
	}
	builder := build.New(store, build.Options{
		ScratchDir:   cfg.ScratchDir,
		Script:       cfg.BuildScript,
		SetupCommand: cfg.SetupCommand,
		Env:          build.EnvFromList(os.Environ()),
		Runner:       runner,
	})

	notifier := notify.NewHTTPNotifier(&http.Client{Timeout: 30 * time.Second}, policy)

	logging.Info("starting zipbuilder", "region", cfg.Region, "runner", cfg.BuildRunner, "scratch_dir", cfg.ScratchDir)
	lambda.Start(handler.New(builder, store, notifier).Handle)
	return nil
}
