package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"marketbot/internal/app"
)

func main() {
	// .env is optional; the real deployment passes BOT_TOKEN via the environment.
	_ = godotenv.Load()

	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marketbot: %v\n", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "marketbot: start: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	a.Stop()
}
