// Package objectstore archives saved analyses and rendered exports in an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"advisor/pkg/config"
	"advisor/pkg/export"
	"advisor/pkg/logx"
)

// Bucket is the subset of object storage the archive needs.
type Bucket interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// AnalysisKey is the object key of an archived analysis.
func AnalysisKey(id string) string {
	return path.Join("analyses", id+".json")
}

// ExportKey is the object key of an archived export document.
func ExportKey(id, filename string) string {
	return path.Join("exports", id, filename)
}

// Archive writes analyses and exports to a bucket. A nil *Archive is valid and archives nothing.
type Archive struct {
	bucket Bucket
	logger *logx.Logger
}

// New wraps an existing bucket.
func New(bucket Bucket) *Archive {
	return &Archive{bucket: bucket, logger: logx.NewLogger("objectstore")}
}

// Open connects to the configured store and ensures the bucket exists.
// It returns nil without error when the archive is disabled.
func Open(ctx context.Context, cfg config.ObjectStoreConfig) (*Archive, error) {
	if !cfg.Enabled {
		return nil, nil //nolint:nilnil // disabled archive
	}
	bucket, err := NewMinioBucket(cfg)
	if err != nil {
		return nil, err
	}
	if err := bucket.Ensure(ctx); err != nil {
		return nil, err
	}
	a := New(bucket)
	a.logger.Info("🗄️ Archiving to bucket %s at %s", cfg.Bucket, cfg.Endpoint)
	return a, nil
}

// Enabled reports whether archiving is active.
func (a *Archive) Enabled() bool {
	return a != nil && a.bucket != nil
}

// PutAnalysis stores v as JSON under AnalysisKey(id).
func (a *Archive) PutAnalysis(ctx context.Context, id string, v any) error {
	if !a.Enabled() {
		return nil
	}
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode analysis %s: %w", id, err)
	}
	key := AnalysisKey(id)
	if err := a.bucket.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	a.logger.Debug("archived %s (%d bytes)", key, len(body))
	return nil
}

// GetAnalysis decodes the archived analysis id into v.
func (a *Archive) GetAnalysis(ctx context.Context, id string, v any) error {
	if !a.Enabled() {
		return fmt.Errorf("object archive is disabled")
	}
	body, err := a.bucket.Get(ctx, AnalysisKey(id))
	if err != nil {
		return fmt.Errorf("failed to read archived analysis %s: %w", id, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode archived analysis %s: %w", id, err)
	}
	return nil
}

// PutExport stores a rendered document under ExportKey(id, doc.Filename).
func (a *Archive) PutExport(ctx context.Context, id string, doc *export.Document) error {
	if !a.Enabled() {
		return nil
	}
	key := ExportKey(id, doc.Filename)
	if err := a.bucket.Put(ctx, key, bytes.NewReader(doc.Body), int64(len(doc.Body)), doc.ContentType); err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	a.logger.Debug("archived %s (%d bytes)", key, len(doc.Body))
	return nil
}

// MinioBucket is a Bucket backed by minio-go.
type MinioBucket struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinioBucket creates a client for cfg. No request is made until first use.
func NewMinioBucket(cfg config.ObjectStoreConfig) (*MinioBucket, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("objectstore endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioBucket{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// Ensure creates the bucket if it does not exist.
func (b *MinioBucket) Ensure(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", b.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: b.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", b.bucket, err)
	}
	return nil
}

// Put uploads one object.
func (b *MinioBucket) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

// Get downloads one object.
func (b *MinioBucket) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = obj.Close() }()
	return io.ReadAll(obj)
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
