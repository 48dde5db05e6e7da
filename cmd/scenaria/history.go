package main

import (
	"fmt"
	"os"

	"github.com/aretw0/scenaria"
	"github.com/aretw0/scenaria/internal/presentation/tui"
	"github.com/aretw0/scenaria/internal/script"
	"github.com/aretw0/scenaria/pkg/adapters/memory"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var historyCmd = &cobra.Command{
	Use:   "history <script>",
	Short: "Show the undo history a script produces",
	Long: `Replays a script on a scratch in-memory scenario and prints the resulting
undo/redo stacks as a markdown audit log. Stored scenarios are not touched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := script.Load(args[0])
		if err != nil {
			return err
		}

		ed, err := scenaria.New(s.Scenario,
			scenaria.WithRepository(memory.NewRepository()),
			scenaria.WithLogger(logger),
		)
		if err != nil {
			return err
		}

		// The scenario itself is saved and forgotten so the log starts with the script.
		create, rest := s.Bootstrap()
		if err := ed.Execute(create); err != nil {
			return err
		}
		if _, err := ed.Save(cmd.Context()); err != nil {
			return err
		}
		if err := ed.ClearHistory(); err != nil {
			return err
		}

		res, err := script.Replay(cmd.Context(), ed, rest, script.Options{ContinueOnError: true})
		if err != nil {
			return err
		}
		for _, failed := range res.Failed {
			logger.Warn("Action failed", "err", failed)
		}

		md := tui.HistoryMarkdown(ed.History())

		raw, _ := cmd.Flags().GetBool("raw")
		if !raw && term.IsTerminal(int(os.Stdout.Fd())) {
			rendered, err := tui.NewRenderer()(md)
			if err == nil {
				md = rendered
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Bool("raw", false, "Print plain markdown even on a terminal")
}
