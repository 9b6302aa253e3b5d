package objectstore

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseGateway runs the contract every backend must satisfy.
func exerciseGateway(t *testing.T, g Gateway) {
	t.Helper()
	ctx := context.Background()
	key := fmt.Sprintf("documents/%s/%s_scan.png", uuid.NewString(), uuid.New().String()[:8])

	ref, err := g.Put(ctx, key, []byte("png bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, g.Container(), ref.Container)
	assert.Equal(t, key, ref.Key)

	parsed, err := models.ParseObjectRef(ref.String())
	require.NoError(t, err)
	assert.Equal(t, ref, parsed, "string form must round trip")

	data, err := g.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), data)

	_, err = g.Get(ctx, models.ObjectRef{Container: g.Container(), Key: key + ".missing"})
	assert.ErrorIs(t, err, models.ErrObjectNotFound)
}

func TestMemoryGateway(t *testing.T) {
	g := NewMemoryGateway("documents")
	exerciseGateway(t, g)

	ref, err := g.Put(context.Background(), "a/b.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", g.ContentType(ref))
	assert.Contains(t, g.Keys(), ref)
}

func TestMemoryGateway_ReturnsCopies(t *testing.T) {
	g := NewMemoryGateway("documents")
	buf := []byte("abc")
	ref, err := g.Put(context.Background(), "k", buf, "text/plain")
	require.NoError(t, err)
	buf[0] = 'z'

	got, err := g.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

// localServiceAvailable skips integration tests when nothing listens on addr.
func localServiceAvailable(t *testing.T, addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Logf("%s not reachable. Skipping integration test.", addr)
		return false
	}
	conn.Close()
	return true
}

func TestMinioGateway_Integration(t *testing.T) {
	if !localServiceAvailable(t, "localhost:9000") {
		t.Skip("minio not available")
	}
	g, err := NewMinioGateway(context.Background(), MinioConfig{
		Endpoint:        "localhost:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		BucketName:      "docflow-test",
		Region:          "us-east-1",
	})
	require.NoError(t, err)
	exerciseGateway(t, g)
}

func TestS3Gateway_Integration(t *testing.T) {
	if !localServiceAvailable(t, "localhost:9000") {
		t.Skip("s3-compatible endpoint not available")
	}
	g, err := NewS3Gateway(context.Background(), S3Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		Bucket:          "docflow-test-s3",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		PathStyle:       true,
	})
	require.NoError(t, err)
	exerciseGateway(t, g)
}
