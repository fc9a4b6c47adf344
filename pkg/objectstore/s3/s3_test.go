package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stashd/stashd/pkg/objectstore"
	"github.com/stashd/stashd/pkg/objectstore/s3mock"
)

// newTestGateway starts a mock backend and a gateway pointed at it.
func newTestGateway(t *testing.T) (*Gateway, *s3mock.Server) {
	t.Helper()
	ctx := context.Background()

	mock := s3mock.New("stashd-test")
	t.Cleanup(mock.Close)

	client, err := NewClient(ctx, ClientConfig{
		Region:          "us-east-1",
		Endpoint:        mock.URL(),
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to build S3 client: %v", err)
	}

	gateway, err := NewGateway(ctx, Config{Client: client, Bucket: mock.Bucket()})
	if err != nil {
		t.Fatalf("failed to build gateway: %v", err)
	}
	return gateway, mock
}

func TestGatewayPutInspectGet(t *testing.T) {
	gateway, _ := newTestGateway(t)
	ctx := context.Background()

	body := []byte("hello stashd")
	key := "prod/infinite/alice/file-1"
	if err := gateway.Put(ctx, key, "text/plain", bytes.NewReader(body)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	info, err := gateway.Inspect(ctx, key)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if info.SizeBytes != int64(len(body)) {
		t.Errorf("size = %d, want %d", info.SizeBytes, len(body))
	}
	if info.ContentType != "text/plain" {
		t.Errorf("content type = %q, want text/plain", info.ContentType)
	}
	if info.ETag == "" {
		t.Error("expected a non-empty ETag")
	}

	reader, getInfo, err := gateway.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer reader.Close()
	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("body = %q, want %q", got, body)
	}
	if getInfo.SizeBytes != int64(len(body)) {
		t.Errorf("get size = %d, want %d", getInfo.SizeBytes, len(body))
	}
}

func TestGatewayInspectMissingObject(t *testing.T) {
	gateway, _ := newTestGateway(t)

	_, err := gateway.Inspect(context.Background(), "prod/infinite/alice/nope")
	if !errors.Is(err, objectstore.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestGatewayRemoveIsIdempotent(t *testing.T) {
	gateway, mock := newTestGateway(t)
	ctx := context.Background()

	key := "prod/1d/alice/gone"
	if err := gateway.Put(ctx, key, "", strings.NewReader("x")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := gateway.Remove(ctx, key); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if mock.HasObject(key) {
		t.Error("object still present after remove")
	}

	// Second removal of the same key succeeds.
	if err := gateway.Remove(ctx, key); err != nil {
		t.Errorf("second remove failed: %v", err)
	}
}

func TestGatewayPresignedUploadAndDownload(t *testing.T) {
	gateway, mock := newTestGateway(t)
	ctx := context.Background()

	key := "prod/7d/alice/presigned"
	ticket, err := gateway.IssueUploadURL(ctx, key, "", 5*time.Minute)
	if err != nil {
		t.Fatalf("failed to issue upload URL: %v", err)
	}
	if ticket.Key != key {
		t.Errorf("ticket key = %q, want %q", ticket.Key, key)
	}
	if !ticket.ExpiresAt.After(time.Now()) {
		t.Error("ticket already expired")
	}

	// The client uploads straight to the backend with a plain HTTP PUT.
	body := []byte("uploaded via presigned URL")
	req, err := http.NewRequest(http.MethodPut, ticket.URL, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build upload request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d, want 200", resp.StatusCode)
	}
	if !mock.HasObject(key) {
		t.Fatal("object missing after presigned upload")
	}

	// And back out through a presigned GET.
	url, err := gateway.IssueDownloadURL(ctx, key, 5*time.Minute)
	if err != nil {
		t.Fatalf("failed to issue download URL: %v", err)
	}
	getResp, err := http.Get(url)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	defer getResp.Body.Close()
	got, err := io.ReadAll(getResp.Body)
	if err != nil {
		t.Fatalf("failed to read download body: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("downloaded body = %q, want %q", got, body)
	}
}

func TestGatewayHealthcheck(t *testing.T) {
	gateway, _ := newTestGateway(t)

	if err := gateway.Healthcheck(context.Background()); err != nil {
		t.Errorf("healthcheck failed: %v", err)
	}
}
