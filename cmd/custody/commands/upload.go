package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evidentia/custody/internal/logger"
	"github.com/evidentia/custody/pkg/custody"
	"github.com/evidentia/custody/pkg/metrics"
	"github.com/evidentia/custody/pkg/upload"
)

// uploadChunkSize is the read granularity for the capture file. Units are
// buffered by the session until they reach the minimum part size, so this
// only bounds memory per read.
const uploadChunkSize = 1024 * 1024

var (
	uploadStorageClass string
	uploadCaptureID    string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a captured media file",
	Long: `Upload a captured media file as a chunked, integrity-verified
multi-part transfer.

The file is read in units, each unit is hashed and chained to its
predecessor, and units are accumulated into parts of at least 5 MiB. If a
previous upload of the same capture was interrupted, pass its capture id
with --capture-id to resume from the confirmed parts instead of starting
over.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]

		captureID := uploadCaptureID
		if captureID == "" {
			captureID = uuid.New().String()
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if uploadStorageClass != "" {
			cfg.Upload.StorageClass = uploadStorageClass
		}

		if cfg.Metrics.Enabled {
			metrics.InitRegistry()
			go serveMetrics(cfg.Metrics.ListenAddress)
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

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		session, err := upload.NewSession(captureID, upload.Options{
			Service:     service,
			Store:       store,
			Retry:       retryPolicy(cfg),
			Metrics:     metrics.NewUploadMetrics(),
			MinPartSize: int(cfg.Upload.MinPartSize.Uint64()),
			OnProgress: func(p upload.Progress) {
				logger.Debug("upload progress",
					"status", p.Status,
					"parts", p.UnitsUploaded,
					"bytesUploaded", p.BytesUploaded,
					"bytesReceived", p.BytesTotalReceived)
			},
		})
		if err != nil {
			return err
		}

		if err := session.Initiate(ctx, cfg.Upload.StorageClass); err != nil {
			return err
		}

		result, err := streamFile(ctx, session, filePath)
		if err != nil {
			return err
		}

		fmt.Printf("Capture %s uploaded to %s\n", captureID, result.ObjectKey)
		if result.URL != "" {
			fmt.Printf("  URL: %s\n", result.URL)
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadStorageClass, "storage-class", "",
		"Storage class for the final object (overrides config)")
	uploadCmd.Flags().StringVar(&uploadCaptureID, "capture-id", "",
		"Capture id to upload under (default: a new random id; pass an existing id to resume)")
}

// streamFile feeds the file through the custody chain into the session and
// completes the upload. When the session resumed a previous run, reading
// starts past the bytes already covered by confirmed parts and the chain
// continues from its persisted tip instead of re-anchoring at genesis.
func streamFile(ctx context.Context, session *upload.Session, filePath string) (*upload.CompleteResult, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer func() { _ = f.Close() }()

	rp := session.ResumePoint()
	if rp.Offset > 0 {
		if _, err := f.Seek(rp.Offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek past confirmed bytes: %w", err)
		}
		logger.Info("resuming capture upload",
			"confirmedBytes", rp.Offset,
			"confirmedUnits", rp.UnitCount)
	}

	chain := custody.Resume(rp.LastUnitHash, rp.UnitCount)
	buf := make([]byte, uploadChunkSize)

	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			unit := chain.Next(data)
			if err := session.AddUnit(ctx, data, unit.Hash, unit.PrevHash); err != nil {
				return nil, err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read capture file: %w", readErr)
		}
	}

	if err := session.Flush(ctx); err != nil {
		return nil, err
	}

	return session.Complete(ctx, nil)
}

// serveMetrics exposes the Prometheus registry over HTTP.
func serveMetrics(addr string) {
	handler := metrics.Handler()
	if handler == nil {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	logger.Info("metrics server listening", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}
