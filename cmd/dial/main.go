package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/code-100-precent/LingCollect/cmd/bootstrap"
	"github.com/code-100-precent/LingCollect/pkg/config"
	"github.com/code-100-precent/LingCollect/pkg/controlplane"
	"github.com/code-100-precent/LingCollect/pkg/monitor"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: dial +15551234567 [Customer Name]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Println("Configuration error:", err)
		os.Exit(1)
	}

	client, err := controlplane.NewClient(controlplane.Options{
		URL:       cfg.LiveKit.URL,
		APIKey:    cfg.LiveKit.APIKey,
		APISecret: cfg.LiveKit.APISecret,
		Timeout:   cfg.LiveKit.Timeout,
	})
	if err != nil {
		fmt.Println("Configuration error:", err)
		os.Exit(1)
	}

	req := bootstrap.DialRequest{
		Phone:     os.Args[1],
		AgentName: cfg.LiveKit.AgentName,
		Persona:   os.Getenv("DIAL_PERSONA"),
		Attempts:  cfg.Monitor.Attempts,
		Interval:  cfg.Monitor.Interval,
	}
	if len(os.Args) > 2 {
		req.CustomerName = os.Args[2]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	room, err := bootstrap.Dial(ctx, os.Stdout, client, client, req, monitor.Options{
		ActiveThreshold: cfg.Monitor.ActiveThreshold,
	})
	if err != nil {
		fmt.Println("Call failed:", err)
		os.Exit(1)
	}
	fmt.Printf("Room %s: %s/rooms/%s\n", room, cfg.LiveKit.URL, room)
}
