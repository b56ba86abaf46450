// Package commands holds the cai-console subcommands.
package commands

import (
	"fmt"
	"time"

	"github.com/caiframework/cai-console/internal/api"
	"github.com/caiframework/cai-console/internal/bridge"
	"github.com/caiframework/cai-console/internal/config"
	"github.com/spf13/cobra"
)

// loadClient loads the config, applies the --server override, and
// builds the API client.
func loadClient(cmd *cobra.Command) (*api.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		cfg.ServerURL = server
	}
	return api.NewClient(cfg.ServerURL), cfg, nil
}

// reconnectPolicy converts config tunables to the bridge policy.
func reconnectPolicy(cfg *config.Config) bridge.ReconnectPolicy {
	policy := bridge.DefaultReconnectPolicy()
	if cfg.Reconnect.DelaySeconds > 0 {
		policy.Delay = time.Duration(cfg.Reconnect.DelaySeconds * float64(time.Second))
	}
	if cfg.Reconnect.Multiplier > 0 {
		policy.Multiplier = cfg.Reconnect.Multiplier
	}
	if cfg.Reconnect.MaxDelaySeconds > 0 {
		policy.MaxDelay = time.Duration(cfg.Reconnect.MaxDelaySeconds * float64(time.Second))
	}
	policy.MaxAttempts = cfg.Reconnect.MaxAttempts
	return policy
}

func verboseFlag(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}
