package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrydev/quarry/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect field schemas",
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a schema file and list its fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := schema.Load(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d fields\n", args[0], s.Len())
		for _, f := range s.Fields() {
			markers := ""
			if f.Grounding {
				markers += " +grounding"
			}
			if f.Reasoning {
				markers += " +reasoning"
			}
			fmt.Printf("  %s (%s)%s: %s\n", f.Name, f.Type, markers, f.Description)
		}
		if n := len(s.Examples); n > 0 {
			fmt.Printf("  %d few-shot example(s)\n", n)
		}
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaValidateCmd)
}
