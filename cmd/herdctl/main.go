package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/herdbook/herdbook/internal/cli"
	"github.com/herdbook/herdbook/internal/common/logtrace"
	"github.com/herdbook/herdbook/internal/config"
)

func init() {
	logtrace.InitLogger(config.DefaultLogLevel, true)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
