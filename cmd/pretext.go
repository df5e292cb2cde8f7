package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pretextPromptName string

var pretextCmd = &cobra.Command{
	Use:   "pretext <email> [promptId]",
	Short: "Generate a pretext draft for a completed target",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var promptID int64
		switch {
		case len(args) == 2:
			promptID, err = strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return eris.Wrapf(err, "invalid prompt id %q", args[1])
			}
		case pretextPromptName != "":
			prompt, err := e.Store.GetPromptByName(ctx, pretextPromptName)
			if err != nil {
				return err
			}
			if prompt == nil {
				return eris.Errorf("prompt not found: %s", pretextPromptName)
			}
			promptID = prompt.ID
		default:
			return eris.New("a prompt id argument or --prompt name is required")
		}

		id, err := e.Pretext.Run(ctx, args[0], promptID)
		if err != nil {
			return err
		}
		zap.L().Info("pretext drafted", zap.Int64("pretext_id", id))
		return nil
	},
}

func init() {
	pretextCmd.Flags().StringVar(&pretextPromptName, "prompt", "", "prompt name to use instead of an id")
	rootCmd.AddCommand(pretextCmd)
}
