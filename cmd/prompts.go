package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List the pretext prompt library",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		prompts, err := e.Store.ListPrompts(ctx)
		if err != nil {
			return err
		}

		if len(prompts) == 0 {
			fmt.Println("no prompts loaded")
			return nil
		}
		for _, p := range prompts {
			fmt.Printf("%d\t%s\n", p.ID, p.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
}
