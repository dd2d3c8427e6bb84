package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abdounikarim/admin/pkg/hydra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [topic]...",
	Short: "Follow real-time document updates over Mercure",
	Long: `Subscribe to one or more Mercure topics and print each update as it
arrives. Relative topics are resolved against the API entry point.

When no hub is configured, the first API response that advertises one
upgrades the subscriptions automatically; the watch command fetches the
entry point once to trigger discovery.

Stop with Ctrl-C.

Examples:
  admin watch /books/1
  admin watch "/books/{id}" --mercure-hub https://demo.api-platform.com/.well-known/mercure`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("mercure-hub", "", "Mercure hub locator (skips discovery)")
	watchCmd.Flags().String("mercure-token", "", "Mercure subscriber JWT")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if hub, _ := cmd.Flags().GetString("mercure-hub"); hub != "" {
		cfg.Mercure.Hub = hub
	}
	if token, _ := cmd.Flags().GetString("mercure-token"); token != "" {
		cfg.Mercure.Token = token
	}

	provider, err := newProvider()
	if err != nil {
		return err
	}
	defer provider.Close()

	provider.Subscribe(args, func(doc hydra.Document) {
		if err := printResult(doc); err != nil {
			fmt.Fprintf(os.Stderr, "Error rendering update: %v\n", err)
		}
	})

	// Without a configured hub, discovery needs one response carrying the
	// Link header; the entry point itself advertises it on API Platform.
	if cfg.Mercure.Hub == "" {
		ctx, cancel := requestContext(cmd)
		if _, err := provider.GetList(ctx, "", hydra.Params{}); err != nil {
			fmt.Fprintf(os.Stderr, "Hub discovery request failed: %v\n", err)
		}
		cancel()
	}

	fmt.Fprintf(os.Stderr, "Watching %d topic(s), Ctrl-C to stop\n", len(args))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	provider.Unsubscribe("", args)
	return nil
}
