package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "List registered connectors",
	Long: `List every registered connector by kind.

Kinds:
  drive     browse/download file stores (s3, azure_blob, ...)
  document  page/content stores (confluence, github, ...)
  tool      vendor tool APIs (spotify, zoom, ...)
  model     LLM adapters (openai, gemini, ...)`,
	Args: cobra.NoArgs,
	RunE: runConnectors,
}

func init() {
	rootCmd.AddCommand(connectorsCmd)
}

func runConnectors(cmd *cobra.Command, _ []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "KIND\tNAME")
	for _, name := range registry.DriveNames() {
		fmt.Fprintf(w, "drive\t%s\n", name)
	}
	for _, name := range registry.DocumentNames() {
		fmt.Fprintf(w, "document\t%s\n", name)
	}
	for _, name := range registry.ProviderNames() {
		fmt.Fprintf(w, "tool\t%s\n", name)
	}
	for _, name := range registry.AdapterNames() {
		fmt.Fprintf(w, "model\t%s\n", name)
	}
	return nil
}
