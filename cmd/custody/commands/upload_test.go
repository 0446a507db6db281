package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentia/custody/pkg/custody"
	"github.com/evidentia/custody/pkg/retry"
	"github.com/evidentia/custody/pkg/upload"
	"github.com/evidentia/custody/pkg/upload/state/memory"
)

// stubService implements upload.Service against a local transfer server.
type stubService struct {
	mu           sync.Mutex
	baseURL      string
	negotiations []upload.NegotiateRequest
	completed    []upload.CompleteRequest
}

func (s *stubService) Start(ctx context.Context, captureID, storageClass string) (*upload.StartResult, error) {
	return &upload.StartResult{
		SessionID: "sess-1",
		CaptureID: captureID,
		ObjectKey: fmt.Sprintf("captures/%s/media.bin", captureID),
	}, nil
}

func (s *stubService) NegotiatePart(ctx context.Context, req upload.NegotiateRequest) (*upload.PartAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.negotiations = append(s.negotiations, req)
	return &upload.PartAuthorization{
		URL:             fmt.Sprintf("%s/parts/%d", s.baseURL, req.PartNumber),
		ConfirmedDigest: req.ContentDigest,
	}, nil
}

func (s *stubService) Complete(ctx context.Context, req upload.CompleteRequest) (*upload.CompleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed = append(s.completed, req)
	return &upload.CompleteResult{ObjectKey: "captures/media.bin"}, nil
}

func (s *stubService) Cancel(ctx context.Context, captureID, sessionID string) error {
	return nil
}

func TestStreamFile_ResumeSkipsConfirmedBytesAndContinuesChain(t *testing.T) {
	var mu sync.Mutex
	received := make(map[string][]byte)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		mu.Lock()
		received[r.URL.Path] = body
		mu.Unlock()

		w.Header().Set("ETag", fmt.Sprintf(`"etag%s"`, r.URL.Path))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := &stubService{baseURL: server.URL}
	store := memory.New()

	content := make([]byte, 6144)
	for i := range content {
		content[i] = byte(i % 251)
	}
	filePath := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(filePath, content, 0o600))

	newSession := func() *upload.Session {
		session, err := upload.NewSession("cap-1", upload.Options{
			Service: svc,
			Store:   store,
			Retry: retry.Policy{
				MaxAttempts: 2,
				BaseDelay:   time.Millisecond,
				MaxDelay:    time.Millisecond,
				Multiplier:  2.0,
			},
			MinPartSize: 4096,
		})
		require.NoError(t, err)
		return session
	}

	ctx := context.Background()

	// First run confirms part 1, then the process dies before completing.
	first := newSession()
	require.NoError(t, first.Initiate(ctx, "STANDARD"))
	chain := custody.NewChain()
	unit := chain.Next(content[:4096])
	require.NoError(t, first.AddUnit(ctx, content[:4096], unit.Hash, unit.PrevHash))

	// A fresh session over the same store stands in for the restarted
	// command. Streaming the same file must upload only the remaining
	// bytes, chained from the confirmed tip.
	second := newSession()
	require.NoError(t, second.Initiate(ctx, "STANDARD"))

	result, err := streamFile(ctx, second, filePath)
	require.NoError(t, err)
	assert.NotEmpty(t, result.ObjectKey)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, content[:4096], received["/parts/1"])
	assert.Equal(t, content[4096:], received["/parts/2"])

	require.Len(t, svc.negotiations, 2)
	assert.Equal(t, unit.Hash, svc.negotiations[1].PrevUnitHash)
	assert.NotEqual(t, custody.GenesisHash, svc.negotiations[1].PrevUnitHash)

	require.Len(t, svc.completed, 1)
	parts := svc.completed[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, 1, parts[0].Number)
	assert.Equal(t, 2, parts[1].Number)
}
