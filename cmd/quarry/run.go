package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runFlags struct {
	clientConfig
	bypassCache bool
}

var runCmd = &cobra.Command{
	Use:   "run <data-request-id>",
	Short: "Execute a data request and print the response",
	Long: `Execute a data request through the engine. The response is served
from cache when an entry exists for the current resolved inputs;
--bypass-cache forces a fresh fetch and refreshes the cached entry.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addClientFlags(runCmd, &runFlags.clientConfig)
	runCmd.Flags().BoolVar(&runFlags.bypassCache, "bypass-cache", false, "skip cache lookup and fetch fresh")
}

func runRun(cmd *cobra.Command, args []string) error {
	c := runFlags.newClient()

	resp, err := c.Run(args[0], runFlags.bypassCache)
	if err != nil {
		return err
	}

	switch resp.Status {
	case "done":
		fmt.Println(string(resp.Response))
		if resp.Cached {
			fmt.Fprintln(cmd.ErrOrStderr(), "(served from cache)")
		}
		return nil
	case "validation_failed":
		if len(resp.MissingRequired) > 0 {
			return fmt.Errorf("validation failed: missing required bindings: %s", strings.Join(resp.MissingRequired, ", "))
		}
		return fmt.Errorf("validation failed: %s", resp.Error)
	case "execution_failed":
		if resp.StatusCode > 0 {
			return fmt.Errorf("execution failed (status %d): %s", resp.StatusCode, resp.Error)
		}
		return fmt.Errorf("execution failed: %s", resp.Error)
	case "transform_failed":
		return fmt.Errorf("transform failed: %s", resp.Error)
	default:
		return fmt.Errorf("unexpected status %q: %s", resp.Status, resp.Error)
	}
}
