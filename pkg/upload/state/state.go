// Package state persists upload session snapshots so that an interrupted
// capture can resume its multi-part transfer after a restart instead of
// starting over.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no snapshot exists for a capture.
var ErrNotFound = errors.New("upload session not found")

// Part is a completed, confirmed part of a multi-part transfer.
type Part struct {
	// Number is the 1-based position of the part.
	Number int `json:"partNumber"`

	// Token is the confirmation token returned by the storage backend
	// after the part's bytes were accepted.
	Token string `json:"confirmationToken"`
}

// Snapshot is the durable record of an in-flight upload session.
type Snapshot struct {
	CaptureID      string `json:"captureId"`
	SessionID      string `json:"sessionId"`
	ObjectKey      string `json:"objectKey"`
	Parts          []Part `json:"parts"`
	NextPartNumber int    `json:"nextPartNumber"`

	// LastUnitHash and UnitCount carry the tip of the custody chain so
	// the chain resumes where it left off.
	LastUnitHash string `json:"lastUnitHash,omitempty"`
	UnitCount    int    `json:"unitCount,omitempty"`

	// BytesUploaded is the number of source bytes covered by confirmed
	// parts. A resuming producer skips this many bytes.
	BytesUploaded int64 `json:"bytesUploaded,omitempty"`
}

// Store persists snapshots keyed by capture ID.
type Store interface {
	// Save writes or replaces the snapshot for its capture.
	Save(snapshot *Snapshot) error

	// Load returns the snapshot for the capture, or ErrNotFound.
	Load(captureID string) (*Snapshot, error)

	// Clear removes the snapshot for the capture. Clearing a missing
	// snapshot is not an error.
	Clear(captureID string) error
}

// Key returns the store key for a capture's snapshot.
func Key(captureID string) []byte {
	return []byte(fmt.Sprintf("upload-session:%s", captureID))
}

// Encode serializes a snapshot for storage.
func Encode(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode deserializes a stored snapshot.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}
