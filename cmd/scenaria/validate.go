package main

import (
	"fmt"

	"github.com/aretw0/scenaria/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <scenario-id>",
	Short: "Check the scenario for consistency",
	Long:  `Crawls the scenario from its root branch and reports orphans, dangling relations and rejected connections.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ed, err := a.sessions.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		issues, err := validator.CheckEditor(ed)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(issues) == 0 {
			fmt.Fprintln(out, "Scenario is valid! ✅")
			return nil
		}
		for _, issue := range issues {
			fmt.Fprintf(out, "- %s\n", issue)
		}
		return fmt.Errorf("validation failed: %d issues", len(issues))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
