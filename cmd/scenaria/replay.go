package main

import (
	"fmt"

	"github.com/aretw0/scenaria/internal/presentation/tui"
	"github.com/aretw0/scenaria/internal/script"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <script>",
	Short: "Replay a command script against a stored scenario",
	Long: `Loads a YAML or JSON script, opens its scenario in the configured storage,
executes every action in order and saves the result. A missing scenario is created
from the script's leading SCENARIO_CREATE action, or from its name.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := script.Load(args[0])
		if err != nil {
			return err
		}

		a, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		create, rest := s.Bootstrap()
		ed, err := a.sessions.OpenOrCreateWith(ctx, s.Scenario, create)
		if err != nil {
			return err
		}

		continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
		res, err := script.Replay(ctx, ed, rest, script.Options{ContinueOnError: continueOnError})
		for _, failed := range res.Failed {
			a.logger.Warn("Action failed", "scenario_id", s.Scenario, "err", failed)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, tui.OperationsSummary(ed.PendingOperations()))

		if noSave, _ := cmd.Flags().GetBool("no-save"); !noSave && len(ed.PendingOperations()) > 0 {
			version, err := a.sessions.Save(ctx, s.Scenario)
			if err != nil {
				return err
			}
			res.Version = version
		}
		if res.Version == 0 {
			res.Version = ed.Version()
		}

		fmt.Fprintf(out, "Replayed %d actions on '%s' (%d failed), version %d\n",
			res.Executed, s.Scenario, len(res.Failed), res.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Bool("continue-on-error", false, "Record failing actions and keep going")
	replayCmd.Flags().Bool("no-save", false, "Do not save the pending operations after the replay")
}
