package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/itskum47/mirrorblade/config"
	"github.com/itskum47/mirrorblade/rpc"
)

func main() {
	var (
		pipeName string
		argsJSON string
		timeout  time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "mbctl <op>",
		Short: "Send one operation to a running mirrorbladed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opArgs map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &opArgs); err != nil {
					return fmt.Errorf("--args must be a JSON object: %w", err)
				}
			}

			c, err := rpc.DialRetry(pipeName, timeout)
			if err != nil {
				return err
			}
			defer c.Close()

			c.SetDeadline(time.Now().Add(timeout))
			reply, err := c.Call(args[0], opArgs)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(reply, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if ok, _ := reply["ok"].(bool); !ok {
				os.Exit(1)
			}
			return nil
		},
	}

	rootCmd.Flags().StringVar(&pipeName, "pipe", config.DefaultPipeName, "pipe endpoint name")
	rootCmd.Flags().StringVar(&argsJSON, "args", "", "operation arguments as a JSON object")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "dial and call timeout")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("mbctl: %v", err)
	}
}
