package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/abdounikarim/admin/internal/config"
	"github.com/abdounikarim/admin/internal/version"
	"github.com/abdounikarim/admin/pkg/hydra"
)

var (
	cfgFile string
	cfg     *config.Config

	// Persistent flag overrides, applied on top of the loaded config.
	flagEntrypoint string
	flagToken      string
	flagLogLevel   string
	flagLogFormat  string
	flagOutput     string
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Command-line client for Hydra-powered APIs",
	Long: `admin talks to any API Platform / Hydra hypermedia API through a
generic CRUD interface: list, fetch, create, update and delete JSON-LD
documents, follow real-time updates over Mercure, and validate documents
locally.

The API entry point comes from the --entrypoint flag, the api.entrypoint
config key, or the ADMIN_API_ENTRYPOINT environment variable.`,
	Version: version.Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagEntrypoint, "entrypoint", "", "API entry point, e.g. https://demo.api-platform.com")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token sent on every API request")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format (json, text)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "output format (json, yaml)")

	rootCmd.AddCommand(introspectCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "%s" .Version}}
`)
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Flags beat every other configuration source.
	if flagEntrypoint != "" {
		cfg.API.Entrypoint = flagEntrypoint
	}
	if flagToken != "" {
		cfg.API.Token = flagToken
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Logging.Format = flagLogFormat
	}
	if flagOutput != "" {
		cfg.Output.Format = flagOutput
	}
}

// newLogger builds the CLI logger from the logging configuration.
func newLogger() hclog.Logger {
	output := os.Stderr
	if cfg.Logging.Output == "stdout" {
		output = os.Stdout
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "admin",
		Level:      hclog.LevelFromString(cfg.Logging.Level),
		Output:     output,
		JSONFormat: cfg.Logging.Format == "json",
	})
}

// newProvider builds the Hydra provider from the loaded configuration.
func newProvider() (*hydra.Provider, error) {
	if err := cfg.RequireEntrypoint(); err != nil {
		return nil, err
	}
	// No client-level timeout: the same client serves long-lived Mercure
	// streams. CRUD commands bound their round trips with request contexts.
	return hydra.New(hydra.Options{
		Entrypoint:       cfg.API.Entrypoint,
		Token:            cfg.API.Token,
		MercureHub:       cfg.Mercure.Hub,
		MercureToken:     cfg.Mercure.Token,
		MercureTopicBase: cfg.Mercure.TopicBase,
		UseEmbedded:      cfg.API.UseEmbedded,
		DisableCache:     cfg.API.DisableCache,
		RateLimit:        cfg.API.RateLimit,
		HTTPClient:       &http.Client{},
		Logger:           newLogger(),
	})
}

// requestContext bounds one API round trip with the configured timeout.
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if cfg.API.Timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), cfg.API.Timeout)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Println(info.String())

		if cmd.Flag("verbose").Changed {
			fmt.Printf("\nDetails:\n")
			fmt.Printf("  Version:    %s\n", info.Version)
			fmt.Printf("  Git Commit: %s\n", info.GitCommit)
			fmt.Printf("  Built:      %s\n", info.BuildTime)
			fmt.Printf("  Go Version: %s\n", info.GoVersion)
			fmt.Printf("  Platform:   %s\n", info.Platform)
		}
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "verbose version output")
}
