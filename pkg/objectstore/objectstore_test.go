package objectstore

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/config"
	"advisor/pkg/export"
)

type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBucket) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	if m.failPut != nil {
		return m.failPut
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	m.types[key] = contentType
	return nil
}

func (m *memBucket) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return b, nil
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "analyses/abc.json", AnalysisKey("abc"))
	assert.Equal(t, "exports/abc/CSA_AI_Analys_Acme AB.csv", ExportKey("abc", "CSA_AI_Analys_Acme AB.csv"))
}

func TestPutAndGetAnalysis(t *testing.T) {
	bucket := newMemBucket()
	archive := New(bucket)
	ctx := context.Background()

	type record struct {
		ID          string `json:"id"`
		CompanyName string `json:"company_name"`
	}
	require.NoError(t, archive.PutAnalysis(ctx, "a1", record{ID: "a1", CompanyName: "Acme AB"}))
	assert.Equal(t, "application/json", bucket.types["analyses/a1.json"])

	var back record
	require.NoError(t, archive.GetAnalysis(ctx, "a1", &back))
	assert.Equal(t, record{ID: "a1", CompanyName: "Acme AB"}, back)

	assert.Error(t, archive.GetAnalysis(ctx, "missing", &back))
}

func TestPutExport(t *testing.T) {
	bucket := newMemBucket()
	doc := &export.Document{Filename: "CSA_Pitch_Deck_Acme.txt", ContentType: "text/plain; charset=utf-8", Body: []byte("deck")}

	require.NoError(t, New(bucket).PutExport(context.Background(), "a1", doc))
	assert.Equal(t, []byte("deck"), bucket.objects["exports/a1/CSA_Pitch_Deck_Acme.txt"])
	assert.Equal(t, doc.ContentType, bucket.types["exports/a1/CSA_Pitch_Deck_Acme.txt"])
}

func TestPutErrorsAreWrapped(t *testing.T) {
	bucket := newMemBucket()
	bucket.failPut = errors.New("access denied")

	err := New(bucket).PutAnalysis(context.Background(), "a1", map[string]string{})
	require.Error(t, err)
	assert.ErrorIs(t, err, bucket.failPut)
	assert.Contains(t, err.Error(), "analyses/a1.json")
}

func TestDisabledArchive(t *testing.T) {
	archive, err := Open(context.Background(), config.ObjectStoreConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, archive)
	assert.False(t, archive.Enabled())

	assert.NoError(t, archive.PutAnalysis(context.Background(), "a1", struct{}{}))
	assert.NoError(t, archive.PutExport(context.Background(), "a1", &export.Document{}))
	assert.Error(t, archive.GetAnalysis(context.Background(), "a1", &struct{}{}))
}

func TestNewMinioBucketRequiresEndpoint(t *testing.T) {
	_, err := NewMinioBucket(config.ObjectStoreConfig{Bucket: "advisor"})
	assert.Error(t, err)

	b, err := NewMinioBucket(config.ObjectStoreConfig{Endpoint: "localhost:9000", Bucket: "advisor", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "advisor", b.bucket)
}
