// Package inspect implements the inspect command, probing a data directory
// and printing its detected structure.
package inspect

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oceanlabs/hydrolabel-go/internal/conf"
	"github.com/oceanlabs/hydrolabel-go/internal/discovery"
)

// Command creates the inspect command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [path]",
		Short: "Probe a data directory and report its structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, settings, args[0], asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func runInspect(cmd *cobra.Command, settings *conf.Settings, path string, asJSON bool) error {
	result := discovery.New(settings.Discovery.MaxEntries).Detect(path)

	if asJSON {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(encoded))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Structure:    %s\n", result.StructureType)
	if result.Message != "" {
		fmt.Fprintf(out, "Message:      %s\n", result.Message)
	}
	if len(result.Dates) > 0 {
		fmt.Fprintf(out, "Dates:        %v\n", result.Dates)
	}
	if len(result.Devices) > 0 {
		fmt.Fprintf(out, "Devices:      %v\n", result.Devices)
	}
	fmt.Fprintf(out, "Spectrograms: %d %v\n", result.SpectrogramCount, result.SpectrogramExtensions)
	fmt.Fprintf(out, "Audio files:  %d\n", result.AudioCount)
	if result.PredictionsFile != "" {
		fmt.Fprintf(out, "Predictions:  %s\n", result.PredictionsFile)
	}
	if result.RootLabelsFile != "" {
		fmt.Fprintf(out, "Labels:       %s\n", result.RootLabelsFile)
	}
	if n := result.SubfolderPredictionsCount(); n > 0 {
		fmt.Fprintf(out, "Subfolder predictions: %d\n", n)
	}
	if n := result.SubfolderLabelsCount(); n > 0 {
		fmt.Fprintf(out, "Subfolder labels:      %d\n", n)
	}
	return nil
}
