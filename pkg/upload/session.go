package upload

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/evidentia/custody/internal/logger"
	"github.com/evidentia/custody/pkg/retry"
	"github.com/evidentia/custody/pkg/upload/state"
)

// Options configures a Session.
type Options struct {
	// Service drives the multi-part protocol. Required.
	Service Service

	// Store persists session snapshots for restart resumability. Required.
	Store state.Store

	// Client performs binary part transfers. Defaults to an http.Client
	// with a five minute timeout.
	Client Doer

	// Retry governs part transfers. Defaults to retry.DefaultPolicy.
	Retry retry.Policy

	// Metrics records upload activity. May be nil.
	Metrics Metrics

	// MinPartSize overrides the automatic flush threshold. Defaults to
	// MinPartSize. Tests use smaller values.
	MinPartSize int

	// OnProgress, if set, observes progress after every state-affecting
	// operation.
	OnProgress ProgressFunc
}

// activeSession holds the protocol state of an open multi-part session.
// A nil activeSession pointer means no session is active.
type activeSession struct {
	sessionID      string
	objectKey      string
	parts          []Part
	nextPartNumber int

	// lastUnitHash and unitCount track the custody-chain tip of the last
	// confirmed part, so a resumed capture continues the chain instead of
	// re-anchoring at genesis.
	lastUnitHash string
	unitCount    int
}

// Session coordinates the multi-part upload of one capture. Multiple
// producers may call AddUnit concurrently; all buffer and part-number
// mutation behaves as if executed sequentially. Construct one Session per
// capture.
type Session struct {
	captureID   string
	service     Service
	store       state.Store
	client      Doer
	policy      retry.Policy
	metrics     Metrics
	minPartSize int
	onProgress  ProgressFunc

	// flushQueue serializes flushes FIFO across concurrent triggers.
	flushQueue fifoMutex

	mu            sync.Mutex
	active        *activeSession
	buffer        []PendingUnit
	bufferedBytes int
	flushing      bool
	status        Status
	bytesUploaded int64
	bytesReceived int64
}

// NewSession creates a session for the given capture.
func NewSession(captureID string, opts Options) (*Session, error) {
	if captureID == "" {
		return nil, newError(ErrNotInitiated, "capture id must not be empty", false)
	}
	if opts.Service == nil {
		return nil, newError(ErrNotInitiated, "upload service is required", false)
	}
	if opts.Store == nil {
		return nil, newError(ErrNotInitiated, "state store is required", false)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	policy := opts.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}

	minPartSize := opts.MinPartSize
	if minPartSize <= 0 {
		minPartSize = MinPartSize
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Session{
		captureID:   captureID,
		service:     opts.Service,
		store:       opts.Store,
		client:      client,
		policy:      policy,
		metrics:     metrics,
		minPartSize: minPartSize,
		onProgress:  opts.OnProgress,
		status:      StatusIdle,
	}, nil
}

// Initiate opens a multi-part session for the capture. If a persisted
// snapshot exists for the capture, the session resumes from it without
// opening a new remote session, so already-confirmed parts are not
// re-uploaded.
func (s *Session) Initiate(ctx context.Context, storageClass string) error {
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return newError(ErrInitiationFailed, "session already initiated", false)
	}
	s.mu.Unlock()

	if restored, err := s.restore(); err != nil {
		return err
	} else if restored {
		s.notifyProgress()
		return nil
	}

	result, err := s.service.Start(ctx, s.captureID, storageClass)
	if err != nil {
		return &Error{
			Code:        ErrInitiationFailed,
			Message:     "failed to start upload session",
			Attempts:    1,
			Recoverable: retry.Recoverable(err),
			Err:         err,
		}
	}
	if result == nil || result.SessionID == "" {
		return newError(ErrInitiationFailed, "no session id returned", false)
	}

	s.mu.Lock()
	s.active = &activeSession{
		sessionID:      result.SessionID,
		objectKey:      result.ObjectKey,
		nextPartNumber: 1,
	}
	s.buffer = nil
	s.bufferedBytes = 0
	s.bytesUploaded = 0
	s.bytesReceived = 0
	s.status = StatusUploading
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return err
	}

	logger.Info("upload session initiated",
		"captureId", s.captureID,
		"sessionId", result.SessionID,
		"objectKey", result.ObjectKey,
		"storageClass", storageClass)

	s.notifyProgress()
	return nil
}

// AddUnit buffers one captured unit. Once the buffer reaches the minimum
// part size and no flush is running, the unit's arrival synchronously
// triggers a flush.
func (s *Session) AddUnit(ctx context.Context, data []byte, hash, prevHash string) error {
	s.mu.Lock()
	if err := s.ensureActiveLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	s.buffer = append(s.buffer, PendingUnit{
		Bytes:    data,
		Hash:     hash,
		PrevHash: prevHash,
	})
	s.bufferedBytes += len(data)
	s.bytesReceived += int64(len(data))

	trigger := s.bufferedBytes >= s.minPartSize && !s.flushing
	if trigger {
		s.flushing = true
	}
	s.mu.Unlock()

	s.notifyProgress()

	if trigger {
		return s.flush(ctx, false)
	}
	return nil
}

// Flush forces out any pending partial buffer immediately, even below the
// minimum part size. Used for the final partial part before Complete.
func (s *Session) Flush(ctx context.Context) error {
	return s.flush(ctx, true)
}

// flush drains the buffer into one part. Concatenation, hashing, and the
// part-number claim all happen inside the same locked boundary, so two
// flushes can never claim the same number or resubmit the same bytes. The
// transfer itself runs outside the session lock; the FIFO queue keeps
// flushes ordered.
func (s *Session) flush(ctx context.Context, force bool) error {
	release := s.flushQueue.acquire()
	defer release()

	s.mu.Lock()
	defer func() {
		s.mu.Lock()
		s.flushing = false
		s.mu.Unlock()
	}()

	if err := s.ensureActiveLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	if len(s.buffer) == 0 || (!force && s.bufferedBytes < s.minPartSize) {
		// An earlier queued flush already drained the buffer.
		s.mu.Unlock()
		return nil
	}

	data := make([]byte, 0, s.bufferedBytes)
	for _, unit := range s.buffer {
		data = append(data, unit.Bytes...)
	}

	block := flushedBlock{
		data:         data,
		number:       s.active.nextPartNumber,
		hash:         hexDigest(data),
		prevHash:     s.buffer[0].PrevHash,
		lastUnitHash: s.buffer[len(s.buffer)-1].Hash,
		unitCount:    len(s.buffer),
	}
	s.active.nextPartNumber++

	// Cleared before the transfer starts, so a flush triggered while this
	// one is in flight cannot resubmit the same bytes.
	s.buffer = nil
	s.bufferedBytes = 0
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return err
	}
	s.notifyProgress()

	start := time.Now()
	err := s.uploadPart(ctx, block)
	s.metrics.RecordFlush(time.Since(start), err)
	return err
}

// Complete flushes any pending buffer, then assembles the final object from
// the confirmed parts. Parts are submitted sorted ascending by part number
// regardless of the order their transfers finished in. On success the
// persisted snapshot is removed.
func (s *Session) Complete(ctx context.Context, preview *PreviewMetadata) (*CompleteResult, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.ensureActiveLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if len(s.active.parts) == 0 {
		s.mu.Unlock()
		return nil, newError(ErrCompletionFailed, "no parts uploaded", false)
	}

	s.status = StatusCompleting

	parts := append([]Part(nil), s.active.parts...)
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].Number < parts[j].Number
	})

	req := CompleteRequest{
		CaptureID: s.captureID,
		SessionID: s.active.sessionID,
		Parts:     parts,
		Preview:   preview,
	}
	s.mu.Unlock()

	s.notifyProgress()

	result, err := s.service.Complete(ctx, req)
	if err != nil {
		s.mu.Lock()
		s.status = StatusFailed
		s.mu.Unlock()

		s.metrics.RecordSessionCompleted(StatusFailed)
		s.notifyProgress()
		return nil, &Error{
			Code:        ErrCompletionFailed,
			Message:     "failed to complete upload",
			Attempts:    1,
			Recoverable: retry.Recoverable(err),
			Err:         err,
		}
	}

	if err := s.store.Clear(s.captureID); err != nil {
		logger.Warn("failed to clear upload session state",
			"captureId", s.captureID,
			"error", err)
	}

	s.mu.Lock()
	s.active = nil
	s.status = StatusCompleted
	s.mu.Unlock()

	logger.Info("upload session completed",
		"captureId", s.captureID,
		"objectKey", result.ObjectKey,
		"parts", len(parts))

	s.metrics.RecordSessionCompleted(StatusCompleted)
	s.notifyProgress()
	return result, nil
}

// Abort cancels the session. The remote cancellation is best-effort: its
// failure is logged and swallowed. Local state is always cleared.
func (s *Session) Abort(ctx context.Context) {
	s.mu.Lock()
	_ = s.ensureActiveLocked()
	var sessionID string
	if s.active != nil {
		sessionID = s.active.sessionID
	}
	s.mu.Unlock()

	if sessionID != "" {
		if err := s.service.Cancel(ctx, s.captureID, sessionID); err != nil {
			logger.Warn("failed to cancel remote upload session",
				"captureId", s.captureID,
				"sessionId", sessionID,
				"error", err)
		}
	}

	if err := s.store.Clear(s.captureID); err != nil {
		logger.Warn("failed to clear upload session state",
			"captureId", s.captureID,
			"error", err)
	}

	s.mu.Lock()
	s.active = nil
	s.buffer = nil
	s.bufferedBytes = 0
	s.bytesUploaded = 0
	s.bytesReceived = 0
	s.status = StatusIdle
	s.mu.Unlock()

	s.metrics.RecordSessionCompleted(StatusIdle)
	s.notifyProgress()
}

// ResumePoint reports how much of the capture's source is already covered
// by confirmed parts and where the custody chain left off. Producers use it
// after a resumed Initiate to skip confirmed bytes and continue the chain
// from its persisted tip.
func (s *Session) ResumePoint() ResumePoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	rp := ResumePoint{Offset: s.bytesUploaded}
	if s.active != nil {
		rp.LastUnitHash = s.active.lastUnitHash
		rp.UnitCount = s.active.unitCount
	}
	return rp
}

// Progress returns a point-in-time view of the session's advancement.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *Session) progressLocked() Progress {
	var uploaded int
	if s.active != nil {
		uploaded = len(s.active.parts)
	}

	estimate := uploaded
	if len(s.buffer) > 0 {
		estimate++
	}

	return Progress{
		UnitsUploaded:      uploaded,
		UnitsTotalEstimate: estimate,
		BytesUploaded:      s.bytesUploaded,
		BytesTotalReceived: s.bytesReceived,
		Status:             s.status,
	}
}

// notifyProgress invokes the progress callback outside the session lock.
func (s *Session) notifyProgress() {
	if s.onProgress == nil {
		return
	}
	s.onProgress(s.Progress())
}

// ensureActiveLocked lazily restores persisted session state. Callers must
// hold s.mu.
func (s *Session) ensureActiveLocked() error {
	if s.active != nil {
		return nil
	}

	snapshot, err := s.store.Load(s.captureID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return newError(ErrNotInitiated, "upload session not initiated", false)
		}
		return &Error{
			Code:        ErrInitiationFailed,
			Message:     "failed to load persisted session state",
			Attempts:    1,
			Recoverable: true,
			Err:         err,
		}
	}

	s.applySnapshotLocked(snapshot)
	return nil
}

// restore resumes from a persisted snapshot, if one exists.
func (s *Session) restore() (bool, error) {
	snapshot, err := s.store.Load(s.captureID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return false, nil
		}
		return false, &Error{
			Code:        ErrInitiationFailed,
			Message:     "failed to load persisted session state",
			Attempts:    1,
			Recoverable: true,
			Err:         err,
		}
	}

	s.mu.Lock()
	s.applySnapshotLocked(snapshot)
	s.mu.Unlock()

	logger.Info("upload session resumed",
		"captureId", s.captureID,
		"sessionId", snapshot.SessionID,
		"confirmedParts", len(snapshot.Parts))
	return true, nil
}

func (s *Session) applySnapshotLocked(snapshot *state.Snapshot) {
	next := snapshot.NextPartNumber
	if next < 1 {
		next = len(snapshot.Parts) + 1
	}

	s.active = &activeSession{
		sessionID:      snapshot.SessionID,
		objectKey:      snapshot.ObjectKey,
		parts:          append([]Part(nil), snapshot.Parts...),
		nextPartNumber: next,
		lastUnitHash:   snapshot.LastUnitHash,
		unitCount:      snapshot.UnitCount,
	}
	s.bytesUploaded = snapshot.BytesUploaded
	s.bytesReceived = snapshot.BytesUploaded
	s.status = StatusUploading
}

// persist writes the current snapshot to the state store.
func (s *Session) persist() error {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return nil
	}
	snapshot := &state.Snapshot{
		CaptureID:      s.captureID,
		SessionID:      s.active.sessionID,
		ObjectKey:      s.active.objectKey,
		Parts:          append([]Part(nil), s.active.parts...),
		NextPartNumber: s.active.nextPartNumber,
		LastUnitHash:   s.active.lastUnitHash,
		UnitCount:      s.active.unitCount,
		BytesUploaded:  s.bytesUploaded,
	}
	s.mu.Unlock()

	if err := s.store.Save(snapshot); err != nil {
		return &Error{
			Code:        ErrTransferFailed,
			Message:     "failed to persist session state",
			Attempts:    1,
			Recoverable: true,
			Err:         err,
		}
	}
	return nil
}
