package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reconCmd = &cobra.Command{
	Use:   "recon <domain>",
	Short: "Resolve a domain's mail records and discover its targets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		domain := args[0]

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Store.EnsureDomain(ctx, domain); err != nil {
			return err
		}
		if err := e.Discovery.Run(ctx, domain); err != nil {
			return err
		}

		summary, err := e.Recon.Run(ctx, domain)
		if err != nil {
			return err
		}

		zap.L().Info("recon done",
			zap.String("domain", domain),
			zap.Int("targets", summary.Targets),
			zap.Int("sources", summary.Sources))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconCmd)
}
