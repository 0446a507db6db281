package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentia/custody/pkg/upload/state/memory"
)

func initiatedSession(t *testing.T, svc *fakeService) *Session {
	t.Helper()

	session := newTestSession(t, "cap-1", svc, memory.New(), 0)
	require.NoError(t, session.Initiate(context.Background(), "STANDARD"))
	return session
}

func testBlock(data []byte, number int, hash, prevHash string) flushedBlock {
	return flushedBlock{
		data:         data,
		number:       number,
		hash:         hash,
		prevHash:     prevHash,
		lastUnitHash: hash,
		unitCount:    1,
	}
}

func TestUploadPart_RejectsPartNumberBelowOne(t *testing.T) {
	session := initiatedSession(t, &fakeService{})

	err := session.uploadPart(context.Background(), testBlock([]byte("data"), 0, "h1", "h0"))
	assert.True(t, IsCode(err, ErrInvalidPartNumber))
}

func TestUploadPart_SetsChecksumHeader(t *testing.T) {
	data := []byte("captured frame bytes")

	var gotChecksum, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotChecksum = r.Header.Get("x-amz-checksum-sha256")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag-1"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := &fakeService{baseURL: server.URL}
	session := initiatedSession(t, svc)

	require.NoError(t, session.uploadPart(context.Background(), testBlock(data, 1, hexDigest(data), "h0")))

	assert.Equal(t, base64Digest(data), gotChecksum)
	assert.Equal(t, "application/octet-stream", gotContentType)
}

func TestUploadPart_StripsTokenQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := &fakeService{baseURL: server.URL}
	session := initiatedSession(t, svc)

	require.NoError(t, session.uploadPart(context.Background(), testBlock([]byte("data"), 1, "h1", "h0")))

	session.mu.Lock()
	defer session.mu.Unlock()
	require.Len(t, session.active.parts, 1)
	assert.Equal(t, Part{Number: 1, Token: "abc123"}, session.active.parts[0])
}

func TestUploadPart_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("ETag", `"etag-1"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := &fakeService{baseURL: server.URL}
	session := initiatedSession(t, svc)

	err := session.uploadPart(context.Background(), testBlock([]byte("data"), 1, "h1", "h0"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestUploadPart_PermanentRejectionNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	svc := &fakeService{baseURL: server.URL}
	session := initiatedSession(t, svc)

	err := session.uploadPart(context.Background(), testBlock([]byte("data"), 1, "h1", "h0"))
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())

	var uploadErr *Error
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, ErrRetriesExhausted, uploadErr.Code)
	assert.Equal(t, 1, uploadErr.Attempts)
	assert.False(t, uploadErr.Recoverable)
}

func TestUploadPart_ExhaustsRetryBudget(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := &fakeService{baseURL: server.URL}
	session := initiatedSession(t, svc)

	err := session.uploadPart(context.Background(), testBlock([]byte("data"), 1, "h1", "h0"))
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())

	var uploadErr *Error
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, ErrRetriesExhausted, uploadErr.Code)
	assert.Equal(t, 3, uploadErr.Attempts)
	assert.True(t, uploadErr.Recoverable)
}

func TestUploadPart_MissingConfirmationIsRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			// 2xx but no confirmation token.
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("ETag", `"etag-1"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := &fakeService{baseURL: server.URL}
	session := initiatedSession(t, svc)

	err := session.uploadPart(context.Background(), testBlock([]byte("data"), 1, "h1", "h0"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestUploadPart_NegotiationFailureNotRetried(t *testing.T) {
	svc := &fakeService{negotiateErr: errors.New("unauthorized")}
	session := initiatedSession(t, svc)

	err := session.uploadPart(context.Background(), testBlock([]byte("data"), 1, "h1", "h0"))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrNegotiationFailed))
	assert.Len(t, svc.negotiated(), 1)

	var uploadErr *Error
	require.ErrorAs(t, err, &uploadErr)
	assert.False(t, uploadErr.Recoverable)
	assert.Equal(t, 1, uploadErr.Attempts)
}

func TestUploadPart_RejectsRelativeAuthorizationURL(t *testing.T) {
	tests := []string{
		"/parts/1",
		"not a url",
		"",
	}

	for _, raw := range tests {
		t.Run(fmt.Sprintf("url %q", raw), func(t *testing.T) {
			assert.Error(t, validateAuthorizationURL(raw))
		})
	}

	assert.NoError(t, validateAuthorizationURL("https://storage.example.com/parts/1?sig=abc"))
}
