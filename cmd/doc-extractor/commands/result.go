package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/pkg/extractor"
)

var resultCmd = &cobra.Command{
	Use:   "result <id>",
	Short: "Print a stored extraction result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := extractor.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.Result(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return domain.IOError("write result", err)
			}
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Text)
		return nil
	},
}

func init() {
	resultCmd.Flags().Bool("json", false, "print the full result as JSON")
}
