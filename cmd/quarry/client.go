package main

import (
	"github.com/quarrylabs/quarry/internal/client"
	"github.com/spf13/cobra"
)

type clientConfig struct {
	apiURL string
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.apiURL, "api-url", getEnv("QUARRY_API_URL", "http://localhost:8081"), "API server URL")
}

func (cfg *clientConfig) newClient() *client.Client {
	return client.NewClient(cfg.apiURL)
}
