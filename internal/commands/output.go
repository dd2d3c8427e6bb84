package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// printResult renders a value on stdout in the configured output format.
func printResult(v interface{}) error {
	switch cfg.Output.Format {
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to render yaml: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render json: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
}
