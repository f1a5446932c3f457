package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"refetch/internal/app"
	logx "refetch/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to config json/yaml (optional)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	boot := logx.NewConsole("INFO").With(logx.String("comp", "main"))

	a, err := app.NewApp(cfgPath)
	if err != nil {
		boot.Error("fatal", logx.Err(err))
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		boot.Error("fatal start", logx.Err(err))
		os.Exit(1)
	}

	// SIGHUP requests a manual refetch.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			if err := a.Refetch(); err != nil {
				boot.Warn("manual refetch skipped", logx.Err(err))
			}
		case <-ctx.Done():
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := a.Stop(stopCtx)
			stopCancel()
			if err != nil {
				os.Exit(1)
			}
			return
		}
	}
}
