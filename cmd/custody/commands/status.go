package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidentia/custody/pkg/upload/state"
)

var statusCmd = &cobra.Command{
	Use:   "status <capture-id>",
	Short: "Show the persisted upload state of a capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		captureID := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := openStateStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		snapshot, err := store.Load(captureID)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				fmt.Printf("No upload session found for capture %s\n", captureID)
				return nil
			}
			return err
		}

		fmt.Printf("Capture:    %s\n", snapshot.CaptureID)
		fmt.Printf("Session:    %s\n", snapshot.SessionID)
		fmt.Printf("Object key: %s\n", snapshot.ObjectKey)
		fmt.Printf("Next part:  %d\n", snapshot.NextPartNumber)
		fmt.Printf("Confirmed parts: %d\n", len(snapshot.Parts))
		for _, part := range snapshot.Parts {
			fmt.Printf("  part %d: %s\n", part.Number, part.Token)
		}
		return nil
	},
}
