package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evidentia/custody/internal/logger"
	"github.com/evidentia/custody/pkg/retry"
)

// checksumHeader carries the part's base64 SHA-256 digest so the storage
// backend verifies the bytes it received match the bytes that were hashed.
const checksumHeader = "x-amz-checksum-sha256"

func hexDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func base64Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// httpStatusError reports a rejected transfer for retry classification.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("transfer rejected with status %d", e.status)
}

func (e *httpStatusError) HTTPStatusCode() int {
	return e.status
}

// flushedBlock is one drained buffer bound for a single part transfer.
// lastUnitHash and unitCount describe the custody-chain tip after the
// block's units.
type flushedBlock struct {
	data         []byte
	number       int
	hash         string
	prevHash     string
	lastUnitHash string
	unitCount    int
}

// uploadPart negotiates authorization for one part, transfers its bytes,
// and records the confirmation token. Negotiation failures are never
// retried; transfer failures are retried per the session's policy.
func (s *Session) uploadPart(ctx context.Context, block flushedBlock) error {
	data := block.data
	partNumber := block.number

	if partNumber < 1 {
		return newError(ErrInvalidPartNumber, fmt.Sprintf("part number %d is below 1", partNumber), false)
	}

	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return newError(ErrNotInitiated, "upload session not initiated", false)
	}
	sessionID := s.active.sessionID
	s.mu.Unlock()

	digest := base64Digest(data)

	auth, err := s.service.NegotiatePart(ctx, NegotiateRequest{
		CaptureID:     s.captureID,
		SessionID:     sessionID,
		PartNumber:    partNumber,
		UnitHash:      block.hash,
		PrevUnitHash:  block.prevHash,
		ContentDigest: digest,
		SizeBytes:     int64(len(data)),
	})
	if err != nil {
		return &Error{
			Code:        ErrNegotiationFailed,
			Message:     fmt.Sprintf("failed to negotiate part %d", partNumber),
			Attempts:    1,
			Recoverable: false,
			Err:         err,
		}
	}
	if err := validateAuthorizationURL(auth.URL); err != nil {
		return &Error{
			Code:        ErrNegotiationFailed,
			Message:     fmt.Sprintf("invalid authorization for part %d", partNumber),
			Attempts:    1,
			Recoverable: false,
			Err:         err,
		}
	}

	label := fmt.Sprintf("part %d transfer", partNumber)
	policy := s.policy
	policy.OnRetry = func(string, int, time.Duration, error) {
		s.metrics.RecordPartRetry()
	}

	var token string
	err = retry.Execute(ctx, policy, label, func(ctx context.Context) error {
		var transferErr error
		token, transferErr = s.transferPart(ctx, auth.URL, data, digest)
		return transferErr
	})
	if err != nil {
		return wrapExhausted(fmt.Sprintf("failed to transfer part %d", partNumber), err)
	}

	s.mu.Lock()
	if s.active == nil {
		// Aborted while the transfer was in flight; the confirmed part is
		// inert.
		s.mu.Unlock()
		logger.Debug("discarding part confirmed after abort",
			"captureId", s.captureID,
			"partNumber", partNumber)
		return nil
	}
	s.active.parts = append(s.active.parts, Part{Number: partNumber, Token: token})
	s.bytesUploaded += int64(len(data))
	if block.lastUnitHash != "" {
		s.active.lastUnitHash = block.lastUnitHash
		s.active.unitCount += block.unitCount
	}
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return err
	}

	logger.Debug("part uploaded",
		"captureId", s.captureID,
		"partNumber", partNumber,
		"size", len(data))

	s.metrics.RecordPartUploaded(int64(len(data)))
	s.notifyProgress()
	return nil
}

// validateAuthorizationURL requires a syntactically valid absolute URL.
func validateAuthorizationURL(raw string) error {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("authorization url is not valid: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("authorization url %q is not absolute", raw)
	}
	return nil
}

// transferPart PUTs the part's bytes to the authorized URL and returns the
// confirmation token. A 2xx response without a token is a failure.
func (s *Session) transferPart(ctx context.Context, authURL string, data []byte, digest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, authURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set(checksumHeader, digest)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transfer failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &httpStatusError{status: resp.StatusCode}
	}

	token := strings.Trim(resp.Header.Get("ETag"), `"`)
	if token == "" {
		return "", newError(ErrConfirmationMissing, "transfer succeeded but returned no confirmation token", true)
	}
	return token, nil
}
