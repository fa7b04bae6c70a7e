package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteFlags struct {
	clientConfig
}

var deleteCmd = &cobra.Command{
	Use:   "delete <data-request-id>",
	Short: "Delete a data request",
	Long:  `Delete a data request with its bindings and cached responses.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	addClientFlags(deleteCmd, &deleteFlags.clientConfig)
}

func runDelete(cmd *cobra.Command, args []string) error {
	c := deleteFlags.newClient()

	if err := c.DeleteDataRequest(args[0]); err != nil {
		return err
	}

	fmt.Printf("Data request %s deleted.\n", args[0])
	return nil
}
