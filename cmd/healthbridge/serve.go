package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wondertwin-ai/healthbridge/internal/api"
	"github.com/wondertwin-ai/healthbridge/internal/client"
	"github.com/wondertwin-ai/healthbridge/internal/device"
)

func (a *app) serveCmd() *cobra.Command {
	var stateFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the twin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.newServer(stateFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return s.Serve(ctx)
		},
	}

	f := cmd.Flags()
	f.Int("port", api.DefaultPort, "listen port")
	f.Duration("latency", 0, "delay added to every request")
	f.Float64("fail-rate", 0, "fraction of requests failed with a 500 (0..1)")
	f.Bool("verbose", false, "debug logging")
	f.String("webhook-url", "", "deliver device events to this URL")
	f.String("webhook-secret", "", "HMAC secret used to sign webhook deliveries")
	f.String("provider", "mock", "health data provider: mock or cloud")
	f.Uint64("seed", 0, "mock provider seed (0 picks one per process)")
	f.String("access-token", "", "OAuth access token for the cloud provider")
	f.String("profile", device.DefaultProfile, "device profile name or YAML file")
	f.StringVar(&stateFile, "state", "", "JSON or YAML state file loaded at startup")
	return cmd
}

func (a *app) newServer(stateFile string) (*api.Server, error) {
	profile, err := device.LoadProfile(a.cfg.Device.Profile)
	if err != nil {
		return nil, err
	}

	s, err := api.NewServer(api.Config{
		Twin:            a.cfg.TwinConfig(),
		Provider:        a.cfg.ProviderConfig(),
		Companion:       a.cfg.Companion,
		Profile:         profile,
		WebhookSecret:   a.cfg.Server.WebhookSecret,
		WebhookPoolSize: a.cfg.Server.WebhookWorkers,
	})
	if err != nil {
		return nil, err
	}

	if stateFile != "" {
		data, err := client.ReadSeedFile(stateFile)
		if err != nil {
			return nil, err
		}
		if err := s.Device.LoadState(data); err != nil {
			return nil, fmt.Errorf("loading state: %w", err)
		}
	}
	return s, nil
}
