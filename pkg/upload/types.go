// Package upload coordinates chunked, integrity-verified multi-part uploads
// of captured evidentiary media.
//
// Captured units are accumulated until they reach the storage provider's
// minimum part size, then concatenated, hashed, and transferred as one part.
// Each part's bytes are digested with SHA-256 and the digest travels with
// the transfer as a checksum header, so the stored block's hash always
// equals the hash of exactly the bytes transmitted. Session state is
// persisted after every confirmed part, letting an interrupted capture
// resume after a restart without re-uploading parts it already confirmed.
package upload

import (
	"context"
	"net/http"

	"github.com/evidentia/custody/pkg/upload/state"
)

// MinPartSize is the storage-provider mandated minimum size of every
// non-final part of a multi-part upload.
const MinPartSize = 5 * 1024 * 1024

// Part is a confirmed part of a multi-part transfer.
type Part = state.Part

// StartResult is returned by a collaborator when a new upload session is
// opened.
type StartResult struct {
	SessionID string
	CaptureID string
	ObjectKey string
}

// NegotiateRequest asks the collaborator to authorize the transfer of one
// part.
type NegotiateRequest struct {
	CaptureID string
	SessionID string

	// PartNumber is the 1-based position of the part.
	PartNumber int

	// UnitHash is the lowercase hex SHA-256 of the part's bytes.
	UnitHash string

	// PrevUnitHash links the part into the capture's custody chain.
	PrevUnitHash string

	// ContentDigest is the base64 SHA-256 of the part's bytes, echoed as
	// the transfer checksum header.
	ContentDigest string

	SizeBytes int64
}

// PartAuthorization grants permission to transfer one part's bytes.
type PartAuthorization struct {
	// URL is the absolute URL the part's bytes must be PUT to.
	URL string

	// ConfirmedDigest echoes the digest the authorization was issued for.
	ConfirmedDigest string
}

// CompleteRequest assembles the object from its confirmed parts.
type CompleteRequest struct {
	CaptureID string
	SessionID string

	// Parts must be sorted ascending by part number.
	Parts []Part

	Preview *PreviewMetadata
}

// CompleteResult is returned once the object has been assembled.
type CompleteResult struct {
	URL       string
	ObjectKey string
}

// PreviewMetadata optionally accompanies completion, describing a preview
// rendition of the captured media.
type PreviewMetadata struct {
	ObjectKey   string `json:"objectKey,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`
}

// Service is the network collaborator driving the multi-part protocol.
// Implementations exist for the custody API and for direct S3 access.
type Service interface {
	// Start opens a new multi-part session for a capture.
	Start(ctx context.Context, captureID, storageClass string) (*StartResult, error)

	// NegotiatePart authorizes the transfer of a single part.
	NegotiatePart(ctx context.Context, req NegotiateRequest) (*PartAuthorization, error)

	// Complete assembles the final object from its confirmed parts.
	Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error)

	// Cancel abandons the session. Callers treat failures as advisory.
	Cancel(ctx context.Context, captureID, sessionID string) error
}

// Doer performs the binary part transfer. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PendingUnit is a buffered media unit waiting to be flushed into a part.
type PendingUnit struct {
	Bytes    []byte
	Hash     string
	PrevHash string
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusCompleting Status = "completing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Progress is a point-in-time view of a session's advancement. The total is
// an estimate because the unit count of a live capture stream is not
// knowable in advance.
type Progress struct {
	UnitsUploaded      int
	UnitsTotalEstimate int
	BytesUploaded      int64
	BytesTotalReceived int64
	Status             Status
}

// ProgressFunc observes progress after every state-affecting operation.
type ProgressFunc func(Progress)

// ResumePoint tells a resuming producer where to pick its source back up:
// bytes before Offset are already confirmed, and the custody chain
// continues from LastUnitHash after UnitCount units. Zero values mean the
// session has confirmed nothing yet.
type ResumePoint struct {
	Offset       int64
	LastUnitHash string
	UnitCount    int
}
