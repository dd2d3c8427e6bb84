package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/abdounikarim/admin/internal/validation"
)

var validateCollection bool

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a JSON-LD document",
	Long: `Validate a JSON-LD document locally: required keywords, IRI shape
and a full JSON-LD expansion check.

Examples:
  admin validate book.json
  admin validate books-page.json --collection
  cat book.json | admin validate -`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateCollection, "collection", false, "validate as a Hydra collection envelope")
}

func runValidate(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	validator := validation.New()

	var result *validation.ValidationResult
	if validateCollection {
		result, err = validator.ValidateCollection(data)
	} else {
		result, err = validator.ValidateDocument(data)
	}
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if result.Valid {
		fmt.Println("✓ Document is valid")
		return nil
	}

	fmt.Println("✗ Validation failed:")
	for _, e := range result.Errors {
		if e.Value != nil {
			fmt.Printf("  - %s: %s (value: %v)\n", e.Field, e.Message, e.Value)
		} else {
			fmt.Printf("  - %s: %s\n", e.Field, e.Message)
		}
	}

	return fmt.Errorf("validation failed")
}
