// Command formfill fills versioned tax forms from semantic values:
//
//	formfill forms
//	formfill fill --form 1040 --year 2024 --values values.yaml --identity name="Jane Q Public" --identity tin=123-45-6789
//	formfill history <document-id>
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	storeDir  string
	indexPath string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "formfill",
	Short: "Versioned PDF tax-form filling",
	Long:  "formfill resolves semantic tax data onto physical form fields, renders the PDF and stores it as an immutable, monotonically versioned artifact.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&storeDir, "store", "s", "formfill-store", "path to the artifact store directory")
	rootCmd.PersistentFlags().StringVar(&indexPath, "index", "", "path to the version index file (default <store>/index.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(fillCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(formsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
