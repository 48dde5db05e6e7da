package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/scenaria/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <scenario-id>",
	Short: "Export the scenario graph",
	Long:  `Loads a stored scenario and outputs a Mermaid diagram (graph TD) with branches as subgraphs, or the raw graph as JSON.`,
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
		g, err := ed.Graph()
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "mermaid":
			selected, _ := cmd.Flags().GetString("selected")
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, &graph.GraphOverlay{Selected: selected}))
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(g)
		default:
			return fmt.Errorf("unknown format %q (supported: mermaid, json)", format)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("format", "f", "mermaid", "Output format: mermaid or json")
	graphCmd.Flags().String("selected", "", "Step to highlight in the Mermaid output")
}
