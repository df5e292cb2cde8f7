package main

import (
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile <email>",
	Short: "Synthesize a profile for an enriched target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		return e.Profile.Run(ctx, args[0])
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
}
