package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdounikarim/admin/pkg/hydra"
)

var (
	// List flags
	listPage    int
	listPerPage int
	listSort    string
	listOrder   string
	listFilters []string

	// Create/update flags
	payloadFile string
)

var listCmd = &cobra.Command{
	Use:   "list [resource]",
	Short: "List documents of a resource collection",
	Long: `Fetch one page of a resource collection.

Filters use the same vocabulary as the API: plain keys, nested keys
(author.name=melville) and operator keys (price[between]=10..20).

Examples:
  admin list books
  admin list books --page 2 --per-page 50
  admin list books --sort title --order desc
  admin list books --filter author.name=melville --filter "price[gte]=10"`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

var getCmd = &cobra.Command{
	Use:   "get [resource] [id]",
	Short: "Fetch a single document",
	Long: `Fetch one document by its IRI.

Examples:
  admin get books /books/1
  admin get reviews /reviews/42 -o yaml`,
	Args: cobra.ExactArgs(2),
	RunE: runGet,
}

var createCmd = &cobra.Command{
	Use:   "create [resource]",
	Short: "Create a document",
	Long: `Create a document from a JSON payload.

Examples:
  admin create books -f book.json
  cat book.json | admin create books -f -`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

var updateCmd = &cobra.Command{
	Use:   "update [resource] [id]",
	Short: "Update a document",
	Long: `Replace a document with a JSON payload.

Examples:
  admin update books /books/1 -f book.json`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [resource] [id]",
	Short: "Delete a document",
	Long: `Delete one document by its IRI.

Examples:
  admin delete books /books/1`,
	Args: cobra.ExactArgs(2),
	RunE: runDelete,
}

func init() {
	listCmd.Flags().IntVar(&listPage, "page", 1, "page number")
	listCmd.Flags().IntVar(&listPerPage, "per-page", 30, "documents per page")
	listCmd.Flags().StringVar(&listSort, "sort", "", "sort field")
	listCmd.Flags().StringVar(&listOrder, "order", "asc", "sort order (asc, desc)")
	listCmd.Flags().StringArrayVar(&listFilters, "filter", nil, "filter as key=value (repeatable)")

	createCmd.Flags().StringVarP(&payloadFile, "file", "f", "", "JSON payload file ('-' for stdin)")
	_ = createCmd.MarkFlagRequired("file") //nolint:errcheck
	updateCmd.Flags().StringVarP(&payloadFile, "file", "f", "", "JSON payload file ('-' for stdin)")
	_ = updateCmd.MarkFlagRequired("file") //nolint:errcheck
}

func runList(cmd *cobra.Command, args []string) error {
	provider, err := newProvider()
	if err != nil {
		return err
	}
	defer provider.Close()

	params := hydra.Params{
		Pagination: &hydra.Pagination{Page: listPage, PerPage: listPerPage},
	}
	if listSort != "" {
		params.Sort = &hydra.Sort{Field: listSort, Order: listOrder}
	}
	if len(listFilters) > 0 {
		filter, err := parseFilters(listFilters)
		if err != nil {
			return err
		}
		params.Filter = filter
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	result, err := provider.GetList(ctx, args[0], params)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", args[0], err)
	}

	if err := printResult(result.Data); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, describeTotal(result.Total, len(result.Data)))
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	provider, err := newProvider()
	if err != nil {
		return err
	}
	defer provider.Close()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	doc, err := provider.GetOne(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", args[1], err)
	}
	return printResult(doc)
}

func runCreate(cmd *cobra.Command, args []string) error {
	data, err := readPayload(payloadFile)
	if err != nil {
		return err
	}

	provider, err := newProvider()
	if err != nil {
		return err
	}
	defer provider.Close()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	doc, err := provider.Create(ctx, args[0], data)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", args[0], err)
	}
	return printResult(doc)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	data, err := readPayload(payloadFile)
	if err != nil {
		return err
	}

	provider, err := newProvider()
	if err != nil {
		return err
	}
	defer provider.Close()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	doc, err := provider.Update(ctx, args[0], args[1], data)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", args[1], err)
	}
	return printResult(doc)
}

func runDelete(cmd *cobra.Command, args []string) error {
	provider, err := newProvider()
	if err != nil {
		return err
	}
	defer provider.Close()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	doc, err := provider.Delete(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", args[1], err)
	}
	fmt.Printf("Deleted %s\n", doc.ID())
	return nil
}

// parseFilters turns repeated key=value flags into a filter map. Values that
// parse as JSON (numbers, booleans, arrays) keep their type; everything else
// stays a string.
func parseFilters(pairs []string) (map[string]interface{}, error) {
	filter := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q (want key=value)", pair)
		}
		var typed interface{}
		if err := json.Unmarshal([]byte(value), &typed); err == nil {
			filter[key] = typed
		} else {
			filter[key] = value
		}
	}
	return filter, nil
}

// readPayload loads the JSON payload from a file or stdin.
func readPayload(name string) (map[string]interface{}, error) {
	var raw []byte
	var err error
	if name == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	return data, nil
}

// describeTotal renders the total of a list result, including the sentinel
// values used when the API does not state an exact count.
func describeTotal(total, pageSize int) string {
	switch total {
	case hydra.TotalLastPage:
		return fmt.Sprintf("Total: %d on this final page (exact count unavailable)", pageSize)
	case hydra.TotalMorePages:
		return fmt.Sprintf("Total: %d on this page, more pages available", pageSize)
	case hydra.TotalUnknown:
		return fmt.Sprintf("Total: %d on this page (no pagination information)", pageSize)
	default:
		return fmt.Sprintf("Total: %d", total)
	}
}
