// Package s3 implements the upload protocol directly against Amazon S3 or
// S3-compatible storage, without going through the custody API. Part
// transfers are authorized with presigned UploadPart URLs, so the session's
// binary transfer path is identical for both backends.
package s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/evidentia/custody/pkg/upload"
)

// Config contains configuration for the S3 upload backend.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region.
	Region string

	// Endpoint overrides the S3 endpoint, for S3-compatible storage.
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials. When empty,
	// the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// KeyPrefix is an optional prefix for all object keys.
	KeyPrefix string

	// ForcePathStyle enables path-style addressing, required by most
	// S3-compatible servers.
	ForcePathStyle bool

	// PresignTTL bounds the validity of part authorization URLs.
	// Default: 15 minutes.
	PresignTTL time.Duration
}

// Store drives multi-part uploads against one S3 bucket.
type Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	keyPrefix  string
	presignTTL time.Duration
}

var _ upload.Service = (*Store)(nil)

// New creates a store over an already-configured S3 client.
func New(client *s3.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	presignTTL := cfg.PresignTTL
	if presignTTL == 0 {
		presignTTL = 15 * time.Minute
	}

	return &Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		keyPrefix:  cfg.KeyPrefix,
		presignTTL: presignTTL,
	}, nil
}

// NewFromConfig builds the S3 client from configuration parameters and
// returns a store over it.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return New(client, cfg)
}

// objectKey derives the object key for a capture.
func (s *Store) objectKey(captureID string) string {
	return path.Join(s.keyPrefix, "captures", captureID, "media.bin")
}

// Start opens a multi-part upload. The upload id becomes the session id.
func (s *Store) Start(ctx context.Context, captureID, storageClass string) (*upload.StartResult, error) {
	key := s.objectKey(captureID)

	input := &s3.CreateMultipartUploadInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if storageClass != "" {
		input.StorageClass = types.StorageClass(storageClass)
	}

	out, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create multipart upload: %w", err))
	}

	return &upload.StartResult{
		SessionID: aws.ToString(out.UploadId),
		CaptureID: captureID,
		ObjectKey: key,
	}, nil
}

// NegotiatePart presigns an UploadPart request carrying the part's SHA-256
// checksum, so S3 rejects a transfer whose bytes do not match the digest the
// authorization was issued for.
func (s *Store) NegotiatePart(ctx context.Context, req upload.NegotiateRequest) (*upload.PartAuthorization, error) {
	presigned, err := s.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:         aws.String(s.bucket),
		Key:            aws.String(s.objectKey(req.CaptureID)),
		UploadId:       aws.String(req.SessionID),
		PartNumber:     aws.Int32(int32(req.PartNumber)),
		ContentLength:  aws.Int64(req.SizeBytes),
		ChecksumSHA256: aws.String(req.ContentDigest),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return nil, classify(fmt.Errorf("failed to presign part %d: %w", req.PartNumber, err))
	}

	return &upload.PartAuthorization{
		URL:             presigned.URL,
		ConfirmedDigest: req.ContentDigest,
	}, nil
}

// Complete assembles the object from its confirmed parts.
func (s *Store) Complete(ctx context.Context, req upload.CompleteRequest) (*upload.CompleteResult, error) {
	parts := make([]types.CompletedPart, len(req.Parts))
	for i, part := range req.Parts {
		parts[i] = types.CompletedPart{
			PartNumber: aws.Int32(int32(part.Number)),
			ETag:       aws.String(part.Token),
		}
	}

	key := s.objectKey(req.CaptureID)
	out, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(req.SessionID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to complete multipart upload: %w", err))
	}

	return &upload.CompleteResult{
		URL:       aws.ToString(out.Location),
		ObjectKey: key,
	}, nil
}

// Cancel aborts the multipart upload. An already-gone upload is not an
// error.
func (s *Store) Cancel(ctx context.Context, captureID, sessionID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.objectKey(captureID)),
		UploadId: aws.String(sessionID),
	})
	if err != nil {
		if isNoSuchUpload(err) {
			return nil
		}
		return classify(fmt.Errorf("failed to abort multipart upload: %w", err))
	}
	return nil
}

// isNoSuchUpload reports whether the upload no longer exists, which Cancel
// treats as success.
func isNoSuchUpload(err error) bool {
	var noSuchUpload *types.NoSuchUpload
	if errors.As(err, &noSuchUpload) {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchUpload")
}
