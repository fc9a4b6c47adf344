// Package s3 implements the objectstore.Gateway on Amazon S3 or any
// S3-compatible backend (MinIO, Cubbit DS3, the in-process mock used by the
// tests).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/stashd/stashd/pkg/objectstore"
)

// Gateway implements objectstore.Gateway using the AWS SDK v2 S3 client.
//
// Presigned URLs carry the uploads and downloads; the service itself only
// signs requests and issues HEAD/DELETE calls, so content bytes never flow
// through this process on the hot path.
//
// Thread Safety:
// The S3 client is safe for concurrent use, and the gateway holds no mutable
// state, so all methods may be called from multiple goroutines.
type Gateway struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// Config contains configuration for the S3 gateway.
type Config struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name. The bucket must already exist; the
	// gateway does not create it.
	Bucket string
}

// NewGateway creates an S3-backed object store gateway and verifies bucket
// access.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Gateway configuration
//
// Returns:
//   - *Gateway: Initialized gateway
//   - error: Error if the bucket is unreachable or the config is incomplete
func NewGateway(ctx context.Context, cfg Config) (*Gateway, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &Gateway{
		client:  cfg.Client,
		presign: s3.NewPresignClient(cfg.Client),
		bucket:  cfg.Bucket,
	}, nil
}

// IssueUploadURL returns a presigned single-PUT upload ticket for key. A
// non-empty contentType becomes part of the signature, so the client's PUT
// must carry the same Content-Type header.
//
// Signing happens locally; no backend round trip occurs, so issuing a URL
// can never tell the caller whether the upload will happen.
func (g *Gateway) IssueUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (*objectstore.UploadTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = objectstore.DefaultURLTTL
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	issued := time.Now().UTC()
	req, err := g.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload for %q: %w", key, err)
	}

	return &objectstore.UploadTicket{
		URL:       req.URL,
		Key:       key,
		ExpiresAt: issued.Add(ttl),
	}, nil
}

// IssueDownloadURL returns a presigned GET URL for key.
func (g *Gateway) IssueDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = objectstore.DefaultURLTTL
	}

	req, err := g.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign download for %q: %w", key, err)
	}
	return req.URL, nil
}

// Inspect returns the backend's metadata for key.
//
// A definite 404 from the backend maps to objectstore.ErrObjectNotFound;
// every other failure keeps its transport error so callers can tell
// "definitely absent" from "could not check".
func (g *Gateway) Inspect(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	head, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", key, objectstore.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to inspect object %q: %w", key, err)
	}

	info := &objectstore.ObjectInfo{
		Key:         key,
		SizeBytes:   aws.ToInt64(head.ContentLength),
		ContentType: aws.ToString(head.ContentType),
		ETag:        aws.ToString(head.ETag),
	}
	if head.LastModified != nil {
		info.LastModified = *head.LastModified
	}
	return info, nil
}

// Remove deletes the object behind key. S3 DeleteObject is idempotent, so a
// missing object is not an error.
func (g *Gateway) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}
	return nil
}

// Put writes an object directly through the service.
func (g *Gateway) Put(ctx context.Context, key string, contentType string, body io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := g.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %q: %w", key, err)
	}
	return nil
}

// Get streams the object body together with its metadata.
func (g *Gateway) Get(ctx context.Context, key string) (io.ReadCloser, *objectstore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, fmt.Errorf("object %s: %w", key, objectstore.ErrObjectNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}

	info := &objectstore.ObjectInfo{
		Key:         key,
		SizeBytes:   aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return out.Body, info, nil
}

// Healthcheck verifies the bucket is reachable.
func (g *Gateway) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(g.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %q unreachable: %w", g.bucket, err)
	}
	return nil
}

// isNotFound reports whether err is a definite 404 from the backend.
//
// HeadObject surfaces types.NotFound, GetObject surfaces types.NoSuchKey,
// and some S3-compatible servers only return the bare HTTP status, so all
// three shapes are checked.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
