package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itskum47/mirrorblade/bridge"
	"github.com/itskum47/mirrorblade/pool"
)

func main() {
	var (
		root        string
		pipeName    string
		metricsAddr string
		workers     int
		noDrain     bool
	)

	rootCmd := &cobra.Command{
		Use:   "mirrorbladed",
		Short: "MirrorBlade control-plane sidecar",
		Long: `mirrorbladed exposes the host process over a line-delimited JSON
protocol on a local pipe endpoint, with a hot-reloaded config file and a
prioritized worker pool behind the operation registry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			poolCfg := pool.DefaultConfig()
			if workers > 0 {
				poolCfg.Workers = workers
			}
			poolCfg.DrainOnStop = !noDrain

			b, err := bridge.Init(bridge.Options{
				Root:        root,
				PipeName:    pipeName,
				MetricsAddr: metricsAddr,
				Pool:        &poolCfg,
			})
			if err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigChan
			b.Log().Infof("Received %s, shutting down", sig)
			b.Shutdown()
			return nil
		},
	}

	rootCmd.Flags().StringVar(&root, "root", ".", "host root (config lives at <root>/r6/config/MirrorBlade.json)")
	rootCmd.Flags().StringVar(&pipeName, "pipe", "", "override the pipe endpoint name")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /ws/diag on this address (e.g. 127.0.0.1:9327)")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (default: one per CPU)")
	rootCmd.Flags().BoolVar(&noDrain, "no-drain", false, "drop pending tasks on shutdown instead of draining")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("mirrorbladed: %v", err)
	}
}
