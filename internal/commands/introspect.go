package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var introspectCmd = &cobra.Command{
	Use:   "introspect",
	Short: "Fetch the API entry point document",
	Long: `Fetch the entry point document of the API and report the advertised
documentation and Mercure hub links.

Examples:
  admin introspect --entrypoint https://demo.api-platform.com
  admin introspect -o yaml`,
	RunE: runIntrospect,
}

func runIntrospect(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireEntrypoint(); err != nil {
		return err
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.API.Entrypoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/ld+json")
	if cfg.API.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.API.Token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch entry point %s: %w; also check that CORS is configured on the API for this origin", cfg.API.Entrypoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("entry point %s answered with status %d", cfg.API.Entrypoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read entry point response: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("entry point response is not JSON: %w", err)
	}
	if err := printResult(doc); err != nil {
		return err
	}

	for _, link := range resp.Header.Values("Link") {
		fmt.Fprintf(os.Stderr, "Link: %s\n", link)
	}
	return nil
}
