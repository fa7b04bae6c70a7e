package main

import (
	"fmt"
	"time"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/spf13/cobra"
)

var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Manage backend connections",
}

var connectionAddFlags struct {
	clientConfig
	kind     string
	host     string
	username string
	password string
}

var connectionAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a backend connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionAdd,
}

var connectionListFlags struct {
	clientConfig
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backend connections",
	RunE:  runConnectionList,
}

func init() {
	rootCmd.AddCommand(connectionCmd)
	connectionCmd.AddCommand(connectionAddCmd)
	connectionCmd.AddCommand(connectionListCmd)

	addClientFlags(connectionAddCmd, &connectionAddFlags.clientConfig)
	connectionAddCmd.Flags().StringVar(&connectionAddFlags.kind, "kind", "http", "backend kind (http|realtimedb|document|sql)")
	connectionAddCmd.Flags().StringVar(&connectionAddFlags.host, "host", "", "backend base URL or address")
	connectionAddCmd.Flags().StringVar(&connectionAddFlags.username, "username", "", "optional username")
	connectionAddCmd.Flags().StringVar(&connectionAddFlags.password, "password", "", "optional password")
	_ = connectionAddCmd.MarkFlagRequired("host")

	addClientFlags(connectionListCmd, &connectionListFlags.clientConfig)
}

func runConnectionAdd(cmd *cobra.Command, args []string) error {
	c := connectionAddFlags.newClient()

	req := api.CreateConnectionRequest{
		Name: args[0],
		Kind: connectionAddFlags.kind,
		Host: connectionAddFlags.host,
	}
	if connectionAddFlags.username != "" {
		req.Username = &connectionAddFlags.username
	}
	if connectionAddFlags.password != "" {
		req.Password = &connectionAddFlags.password
	}

	resp, err := c.CreateConnection(req)
	if err != nil {
		return err
	}

	fmt.Printf("Connection %s created (%s).\n", resp.ID, resp.Kind)
	return nil
}

func runConnectionList(cmd *cobra.Command, args []string) error {
	c := connectionListFlags.newClient()

	resp, err := c.ListConnections()
	if err != nil {
		return err
	}

	if len(resp.Connections) == 0 {
		fmt.Println("No connections found.")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-19s  %-20s  %s\n", "ID", "KIND", "CREATED", "NAME", "HOST")
	for _, conn := range resp.Connections {
		createdAt, _ := time.Parse(time.RFC3339, conn.CreatedAt)
		createdStr := createdAt.Format("2006-01-02 15:04:05")
		fmt.Printf("%-36s  %-10s  %-19s  %-20s  %s\n", conn.ID, conn.Kind, createdStr, conn.Name, conn.Host)
	}

	return nil
}
