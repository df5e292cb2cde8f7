package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [email ...]",
	Short: "Scrape unmined sources, optionally scoped to target emails",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		sources, err := e.Store.UnminedSourcesForTargets(ctx, args)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			zap.L().Info("nothing to scrape")
			return nil
		}

		for _, src := range sources {
			if err := e.Scrape.Run(ctx, src.ID, src.URL); err != nil {
				zap.L().Error("scrape run failed",
					zap.Int64("source_id", src.ID),
					zap.String("url", src.URL),
					zap.Error(err))
			}
		}
		zap.L().Info("scrape done", zap.Int("sources", len(sources)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}
