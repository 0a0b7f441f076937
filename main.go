package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pitrctl/cmd"
	"pitrctl/internal/config"
	"pitrctl/internal/exitcode"
	"pitrctl/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(exitcode.ConfigErr)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := cmd.Execute(ctx, cfg, log); err != nil {
		log.Error(err.Error())
		os.Exit(exitcode.FromError(err))
	}
}
