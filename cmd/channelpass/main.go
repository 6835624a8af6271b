package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/bootstrap"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/config"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/env"
)

const shutdownTimeout = 15 * time.Second

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer container.Close()

	app := NewApplication(container)

	container.Queue.Start()
	defer container.Queue.Stop()

	if cfg.Scheduler.Enabled {
		if err := container.RegisterJobs(ctx); err != nil {
			log.Fatalf("Registering jobs failed: %v", err)
		}
		container.Scheduler.Start()
		defer container.Scheduler.Stop()
	} else {
		log.Println("Scheduler disabled on this instance")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down HTTP server...")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped with error: %v", err)
	}
}
