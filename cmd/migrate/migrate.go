// Package migrate implements the migrate command, upgrading legacy label
// files to the unified schema in place.
package migrate

import (
	"github.com/spf13/cobra"

	"github.com/oceanlabs/hydrolabel-go/internal/conf"
	"github.com/oceanlabs/hydrolabel-go/internal/labelstore"
)

// Command creates the migrate command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [labels.json...]",
		Short: "Upgrade legacy label files to the unified schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := labelstore.New()
			for _, path := range args {
				changed, err := store.Migrate(path)
				if err != nil {
					return err
				}
				if changed {
					cmd.Printf("upgraded %s\n", path)
				} else {
					cmd.Printf("already unified: %s\n", path)
				}
			}
			return nil
		},
	}
}
