package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var fetchOnly bool
	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Fetches one page and prints the extracted confirmation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var out any
			if fetchOnly {
				out, err = appInstance.Service().FetchContent(cmd.Context(), args[0])
			} else {
				out, err = appInstance.Service().FetchAndAnalyze(cmd.Context(), args[0])
			}
			if err != nil {
				return fmt.Errorf("analyze %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fetchOnly, "fetch-only", false, "print normalized page content instead of analyzing it")
	return cmd
}
