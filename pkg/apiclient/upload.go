package apiclient

import (
	"context"
	"fmt"
	"net/url"

	"github.com/evidentia/custody/pkg/upload"
)

// Compile-time check that the client can drive upload sessions.
var _ upload.Service = (*Client)(nil)

type startUploadRequest struct {
	StorageClass string `json:"storageClass,omitempty"`
}

type startUploadResponse struct {
	SessionID string `json:"sessionId"`
	CaptureID string `json:"captureId"`
	ObjectKey string `json:"objectKey"`
}

type negotiatePartRequest struct {
	PartNumber    int    `json:"partNumber"`
	UnitHash      string `json:"unitHash"`
	PrevUnitHash  string `json:"previousUnitHash,omitempty"`
	ContentDigest string `json:"contentDigest"`
	SizeBytes     int64  `json:"sizeBytes"`
}

type negotiatePartResponse struct {
	AuthorizationURL string `json:"authorizationUrl"`
	ConfirmedDigest  string `json:"confirmedDigest,omitempty"`
}

type completeUploadRequest struct {
	Parts   []upload.Part           `json:"parts"`
	Preview *upload.PreviewMetadata `json:"preview,omitempty"`
}

type completeUploadResponse struct {
	URL       string `json:"url"`
	ObjectKey string `json:"objectKey"`
}

// Start opens a multi-part upload session for a capture.
func (c *Client) Start(ctx context.Context, captureID, storageClass string) (*upload.StartResult, error) {
	var resp startUploadResponse
	path := fmt.Sprintf("/api/v1/captures/%s/uploads", url.PathEscape(captureID))
	if err := c.post(ctx, path, startUploadRequest{StorageClass: storageClass}, &resp); err != nil {
		return nil, err
	}

	return &upload.StartResult{
		SessionID: resp.SessionID,
		CaptureID: resp.CaptureID,
		ObjectKey: resp.ObjectKey,
	}, nil
}

// NegotiatePart requests upload authorization for one part.
func (c *Client) NegotiatePart(ctx context.Context, req upload.NegotiateRequest) (*upload.PartAuthorization, error) {
	var resp negotiatePartResponse
	path := fmt.Sprintf("/api/v1/captures/%s/uploads/%s/parts",
		url.PathEscape(req.CaptureID), url.PathEscape(req.SessionID))
	err := c.post(ctx, path, negotiatePartRequest{
		PartNumber:    req.PartNumber,
		UnitHash:      req.UnitHash,
		PrevUnitHash:  req.PrevUnitHash,
		ContentDigest: req.ContentDigest,
		SizeBytes:     req.SizeBytes,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &upload.PartAuthorization{
		URL:             resp.AuthorizationURL,
		ConfirmedDigest: resp.ConfirmedDigest,
	}, nil
}

// Complete assembles the final object from its confirmed parts.
func (c *Client) Complete(ctx context.Context, req upload.CompleteRequest) (*upload.CompleteResult, error) {
	var resp completeUploadResponse
	path := fmt.Sprintf("/api/v1/captures/%s/uploads/%s/complete",
		url.PathEscape(req.CaptureID), url.PathEscape(req.SessionID))
	err := c.post(ctx, path, completeUploadRequest{
		Parts:   req.Parts,
		Preview: req.Preview,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &upload.CompleteResult{
		URL:       resp.URL,
		ObjectKey: resp.ObjectKey,
	}, nil
}

// Cancel abandons an upload session.
func (c *Client) Cancel(ctx context.Context, captureID, sessionID string) error {
	path := fmt.Sprintf("/api/v1/captures/%s/uploads/%s",
		url.PathEscape(captureID), url.PathEscape(sessionID))
	return c.delete(ctx, path, nil)
}
