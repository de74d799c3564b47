package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	configFile          string
	nomenclatureVersion string
	outputJSON          bool
)

var rootCmd = &cobra.Command{
	Use:   "hla-metadata",
	Short: "Resolve HLA typings to matching and scoring metadata",
	Long: `Resolves HLA typings (alleles, allele strings, ambiguity codes, XX codes,
serologies and P, G or small-g groups) to the metadata used for donor matching.
Reference data is imported per nomenclature version into SQLite or PostgreSQL.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nomenclatureVersion, "nomenclature-version", "", "nomenclature version to query (default nomenclature.default_version)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
}

// printResult writes v as indented JSON when --json is set and uses text otherwise.
func printResult(cmd *cobra.Command, v interface{}, text func()) error {
	if !outputJSON {
		text()
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
