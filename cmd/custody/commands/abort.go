package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evidentia/custody/pkg/upload"
)

var abortCmd = &cobra.Command{
	Use:   "abort <capture-id>",
	Short: "Abort an interrupted upload",
	Long: `Abort the persisted upload session of a capture.

The remote session is cancelled on a best-effort basis; local session state
is cleared unconditionally, so a later upload of the same capture starts
fresh.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		captureID := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		service, err := buildService(cfg)
		if err != nil {
			return err
		}

		store, err := openStateStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		session, err := upload.NewSession(captureID, upload.Options{
			Service: service,
			Store:   store,
			Retry:   retryPolicy(cfg),
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		session.Abort(ctx)

		fmt.Printf("Upload session for capture %s aborted\n", captureID)
		return nil
	},
}
