package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/hla-metadata-dictionary/internal/config"
	"github.com/hla-metadata-dictionary/internal/database"
	"github.com/hla-metadata-dictionary/internal/domain"
	"github.com/hla-metadata-dictionary/internal/service"
	"github.com/hla-metadata-dictionary/pkg/typing"
)

var convertTarget string

var classifyCmd = &cobra.Command{
	Use:   "classify [typing]",
	Short: "Print the category of a typing string",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category := typing.Classify(args[0])
		result := struct {
			Typing   string `json:"typing"`
			Category string `json:"category"`
		}{args[0], category.String()}
		return printResult(cmd, result, func() {
			fmt.Fprintln(cmd.OutOrStdout(), category.String())
		})
	},
}

var matchingCmd = &cobra.Command{
	Use:   "matching [locus] [typing]",
	Short: "Resolve the matching metadata of a typing",
	Args:  cobra.ExactArgs(2),
	RunE: withDictionary(func(cmd *cobra.Command, d *service.Dictionary, locus domain.Locus, args []string) error {
		matching, err := d.Matching(cmd.Context(), locus, args[1])
		if err != nil {
			return err
		}
		return printResult(cmd, matching, func() { printMatching(cmd, "", matching) })
	}),
}

var scoringCmd = &cobra.Command{
	Use:   "scoring [locus] [typing]",
	Short: "Resolve the scoring metadata of a typing",
	Args:  cobra.ExactArgs(2),
	RunE: withDictionary(func(cmd *cobra.Command, d *service.Dictionary, locus domain.Locus, args []string) error {
		scoring, err := d.Scoring(cmd.Context(), locus, args[1])
		if err != nil {
			return err
		}
		return printResult(cmd, scoring, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s*%s (%s)\n", scoring.Locus, scoring.LookupName, scoring.TypingMethod)
			fmt.Fprintf(cmd.OutOrStdout(), "  kind:       %s\n", scoring.ScoringInfo.Kind())
			switch info := scoring.ScoringInfo.(type) {
			case domain.SingleAlleleScoringInfo:
				fmt.Fprintf(cmd.OutOrStdout(), "  allele:     %s\n", info.AlleleName)
				fmt.Fprintf(cmd.OutOrStdout(), "  p group:    %s\n", info.MatchingPGroup)
				fmt.Fprintf(cmd.OutOrStdout(), "  g group:    %s\n", info.MatchingGGroup)
			case domain.MultipleAlleleScoringInfo:
				for _, member := range info.Members {
					fmt.Fprintf(cmd.OutOrStdout(), "  member:     %s %s %s\n", member.AlleleName, member.MatchingPGroup, member.MatchingGGroup)
				}
			case domain.ConsolidatedMolecularScoringInfo:
				fmt.Fprintf(cmd.OutOrStdout(), "  p groups:   %s\n", joinOrDash(info.MatchingPGroups))
				fmt.Fprintf(cmd.OutOrStdout(), "  g groups:   %s\n", joinOrDash(info.MatchingGGroups))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  serologies: %s\n", joinOrDash(scoring.ScoringInfo.Serologies()))
		})
	}),
}

var tceCmd = &cobra.Command{
	Use:   "tce [typing]",
	Short: "Resolve the DPB1 T-cell epitope group of a typing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithDictionary(cmd, func(d *service.Dictionary) error {
			metadata, err := d.TceGroup(cmd.Context(), domain.LocusDpb1, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, metadata, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "DPB1*%s: %s\n", metadata.LookupName, metadata.TceGroup)
			})
		})
	},
}

var locusCmd = &cobra.Command{
	Use:   "locus [locus] [typing1] [typing2]",
	Short: "Resolve both positions of a locus with the null allele merge applied",
	Args:  cobra.ExactArgs(3),
	RunE: withDictionary(func(cmd *cobra.Command, d *service.Dictionary, locus domain.Locus, args []string) error {
		metadata, err := d.LocusMatching(cmd.Context(), locus, args[1], args[2])
		if err != nil {
			return err
		}
		return printResult(cmd, metadata, func() {
			printMatching(cmd, "position 1: ", metadata.Position1)
			printMatching(cmd, "position 2: ", metadata.Position2)
		})
	}),
}

var convertCmd = &cobra.Command{
	Use:   "convert [locus] [typing]",
	Short: "Convert a typing to another representation",
	Long: `Converts a typing to one of: two-field-including-suffix, two-field-excluding-suffix,
g-group, p-group, small-g-group or serology.`,
	Args: cobra.ExactArgs(2),
	RunE: withDictionary(func(cmd *cobra.Command, d *service.Dictionary, locus domain.Locus, args []string) error {
		target, err := service.ParseTargetFormat(convertTarget)
		if err != nil {
			return err
		}
		converted, err := d.Convert(cmd.Context(), locus, args[1], target)
		if err != nil {
			return err
		}
		return printResult(cmd, converted, func() {
			for _, name := range converted {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		})
	}),
}

var importCmd = &cobra.Command{
	Use:   "import [dataset.json]",
	Short: "Import one nomenclature version of reference data",
	Long: `Imports a JSON dataset holding one nomenclature version's fact rows, allele names,
group memberships and serology mappings. Existing data for that version is replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read dataset: %w", err)
		}
		var dataset domain.Dataset
		if err := json.Unmarshal(data, &dataset); err != nil {
			return fmt.Errorf("failed to parse dataset: %w", err)
		}

		a, err := newStoreApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Import(cmd.Context(), &dataset); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported nomenclature version %s (%d fact rows)\n", dataset.Version, len(dataset.FactRows))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the PostgreSQL schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Storage.Driver != config.DriverPostgres {
			fmt.Fprintln(cmd.OutOrStdout(), "The SQLite store creates its schema on open; nothing to migrate.")
			return nil
		}

		runner, err := database.NewMigrationRunner(database.ConnectionURL(cfg.Storage.Postgres), cfg.Storage.MigrationsPath, logger)
		if err != nil {
			return err
		}
		defer runner.Close()

		if direction == "down" {
			err = runner.Down()
		} else {
			err = runner.Up()
		}
		if err != nil {
			return err
		}
		version, dirty, err := runner.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Fprintln(cmd.OutOrStdout(), "Schema has no applied migrations")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertTarget, "to", "t", "p-group", "target representation")

	rootCmd.AddCommand(classifyCmd, matchingCmd, scoringCmd, tceCmd, locusCmd, convertCmd, importCmd, migrateCmd)
}

type dictionaryRunE func(cmd *cobra.Command, d *service.Dictionary, locus domain.Locus, args []string) error

// withDictionary parses the locus argument and runs fn against a wired dictionary.
func withDictionary(fn dictionaryRunE) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		locus, err := domain.ParseLocus(args[0])
		if err != nil {
			return err
		}
		return runWithDictionary(cmd, func(d *service.Dictionary) error {
			return fn(cmd, d, locus, args)
		})
	}
}

func runWithDictionary(cmd *cobra.Command, fn func(*service.Dictionary) error) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.dictionary()
	if err != nil {
		return err
	}
	return describe(fn(d))
}

// describe turns lookup failures into messages fit for a terminal.
func describe(err error) error {
	var unrecognized *domain.UnrecognizedTypingError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &unrecognized):
		return fmt.Errorf("unrecognised typing: %w", err)
	case domain.IsValidationError(err):
		return fmt.Errorf("invalid input: %w", err)
	}
	return err
}

func printMatching(cmd *cobra.Command, prefix string, m domain.MatchingMetadata) {
	null := ""
	if m.IsNullExpressingTyping {
		null = " null"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s%s*%s (%s%s): %s\n", prefix, m.Locus, m.LookupName, m.TypingMethod, null, joinOrDash(m.MatchingPGroups))
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
