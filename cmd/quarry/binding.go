package main

import (
	"fmt"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/spf13/cobra"
)

var bindingCmd = &cobra.Command{
	Use:   "binding",
	Short: "Manage variable bindings for a data request",
}

var bindingSetFlags struct {
	clientConfig
	bindingType  string
	defaultValue string
	required     bool
	value        string
}

var bindingSetCmd = &cobra.Command{
	Use:   "set <data-request-id> <name>",
	Short: "Create or update a variable binding",
	Long: `Create or update the binding for one {{name}} placeholder. Saving a
binding drops all cached responses for the data request.`,
	Args: cobra.ExactArgs(2),
	RunE: runBindingSet,
}

var bindingListFlags struct {
	clientConfig
}

var bindingListCmd = &cobra.Command{
	Use:   "list <data-request-id>",
	Short: "List variable bindings",
	Args:  cobra.ExactArgs(1),
	RunE:  runBindingList,
}

func init() {
	rootCmd.AddCommand(bindingCmd)
	bindingCmd.AddCommand(bindingSetCmd)
	bindingCmd.AddCommand(bindingListCmd)

	addClientFlags(bindingSetCmd, &bindingSetFlags.clientConfig)
	bindingSetCmd.Flags().StringVar(&bindingSetFlags.bindingType, "type", "string", "binding type (string|number|boolean|date)")
	bindingSetCmd.Flags().StringVar(&bindingSetFlags.defaultValue, "default", "", "default value used when no value is set")
	bindingSetCmd.Flags().BoolVar(&bindingSetFlags.required, "required", false, "fail resolution when the binding has no value")
	bindingSetCmd.Flags().StringVar(&bindingSetFlags.value, "value", "", "current value")

	addClientFlags(bindingListCmd, &bindingListFlags.clientConfig)
}

func runBindingSet(cmd *cobra.Command, args []string) error {
	c := bindingSetFlags.newClient()

	resp, err := c.SetBinding(args[0], args[1], api.SetBindingRequest{
		Type:         bindingSetFlags.bindingType,
		DefaultValue: bindingSetFlags.defaultValue,
		Required:     bindingSetFlags.required,
		Value:        bindingSetFlags.value,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Binding %s saved (type %s).\n", resp.Name, resp.Type)
	return nil
}

func runBindingList(cmd *cobra.Command, args []string) error {
	c := bindingListFlags.newClient()

	resp, err := c.ListBindings(args[0])
	if err != nil {
		return err
	}

	if len(resp.Bindings) == 0 {
		fmt.Println("No bindings found.")
		return nil
	}

	fmt.Printf("%-20s  %-8s  %-8s  %-16s  %s\n", "NAME", "TYPE", "REQUIRED", "DEFAULT", "VALUE")
	for _, b := range resp.Bindings {
		req := "no"
		if b.Required {
			req = "yes"
		}
		fmt.Printf("%-20s  %-8s  %-8s  %-16s  %s\n", b.Name, b.Type, req, b.DefaultValue, b.Value)
	}

	return nil
}
