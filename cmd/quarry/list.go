package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var listFlags struct {
	clientConfig
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List data requests",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	addClientFlags(listCmd, &listFlags.clientConfig)
}

func runList(cmd *cobra.Command, args []string) error {
	c := listFlags.newClient()

	resp, err := c.ListDataRequests()
	if err != nil {
		return err
	}

	if len(resp.DataRequests) == 0 {
		fmt.Println("No data requests found.")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-19s  %s\n", "ID", "KIND", "UPDATED", "TEMPLATE")
	for _, dr := range resp.DataRequests {
		updatedAt, _ := time.Parse(time.RFC3339, dr.UpdatedAt)
		updatedStr := updatedAt.Format("2006-01-02 15:04:05")
		template := dr.Template
		if len(template) > 60 {
			template = template[:57] + "..."
		}
		fmt.Printf("%-36s  %-10s  %-19s  %s\n", dr.ID, dr.Kind, updatedStr, template)
	}

	return nil
}
