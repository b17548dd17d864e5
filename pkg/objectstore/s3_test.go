package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 records requests made against a path-style bucket
type fakeS3 struct {
	mu       sync.Mutex
	requests []string
	objects  map[string]string
	meta     map[string]string
	headFail bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	switch r.Method {
	case http.MethodHead:
		if f.headFail {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		if strings.Count(strings.Trim(r.URL.Path, "/"), "/") == 0 {
			// CreateBucket
			f.headFail = false
			w.WriteHeader(http.StatusOK)
			return
		}
		f.objects[r.URL.Path] = string(body)
		f.meta[r.URL.Path] = r.Header.Get("X-Amz-Meta-Checksum-Sha256")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func setupS3Test(t *testing.T, headFail bool) (*S3, *fakeS3, string) {
	t.Helper()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	fake := &fakeS3{objects: map[string]string{}, meta: map[string]string{}, headFail: headFail}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3(context.Background(), S3Config{
		Endpoint:     srv.URL,
		Region:       "us-east-1",
		Bucket:       "attachments",
		AccessKey:    "test",
		SecretKey:    "test-secret",
		UsePathStyle: true,
		MaxSize:      1024,
	})
	require.NoError(t, err)
	return store, fake, srv.URL
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestNewS3_CreatesMissingBucket(t *testing.T) {
	_, fake, _ := setupS3Test(t, true)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.requests, 2)
	assert.Equal(t, "HEAD /attachments", fake.requests[0])
	assert.Equal(t, "PUT /attachments", fake.requests[1])
}

func TestS3_Put(t *testing.T) {
	store, fake, endpoint := setupS3Test(t, false)

	url, err := store.Put(context.Background(), "projects/1/deck.pdf", strings.NewReader("slides"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, endpoint+"/attachments/projects/1/deck.pdf", url)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "slides", fake.objects["/attachments/projects/1/deck.pdf"])
	// sha256("slides")
	assert.Len(t, fake.meta["/attachments/projects/1/deck.pdf"], 64)
}

func TestS3_PutRejectsOversizedBody(t *testing.T) {
	store, fake, _ := setupS3Test(t, false)

	_, err := store.Put(context.Background(), "projects/1/big.bin", strings.NewReader(strings.Repeat("x", 2048)), "application/octet-stream")
	assert.Error(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.objects)
}

func TestS3_DeleteAndHealthCheck(t *testing.T) {
	store, fake, _ := setupS3Test(t, false)
	ctx := context.Background()

	_, err := store.Put(ctx, "projects/2/a.txt", strings.NewReader("a"), "text/plain")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "projects/2/a.txt"))
	require.NoError(t, store.HealthCheck(ctx))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.objects)
}

func TestS3_URL(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{
			name: "public base url",
			cfg:  S3Config{PublicBaseURL: "https://cdn.example.com/", Bucket: "b"},
			want: "https://cdn.example.com/k.pdf",
		},
		{
			name: "virtual hosted endpoint",
			cfg:  S3Config{Endpoint: "https://b.storage.example.com", Bucket: "b"},
			want: "https://b.storage.example.com/k.pdf",
		},
		{
			name: "aws default",
			cfg:  S3Config{Bucket: "b", Region: "eu-west-1"},
			want: "https://b.s3.eu-west-1.amazonaws.com/k.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &S3{cfg: tt.cfg}
			assert.Equal(t, tt.want, s.URL("k.pdf"))
		})
	}
}

func TestAttachmentKey(t *testing.T) {
	key := AttachmentKey(7, "Pitch Deck.PDF")
	assert.True(t, strings.HasPrefix(key, "projects/7/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotEqual(t, key, AttachmentKey(7, "Pitch Deck.PDF"))

	assert.NotContains(t, AttachmentKey(7, `C:\tmp\evil.a b`), " ")
	assert.False(t, strings.Contains(AttachmentKey(7, "noext"), "."))
}

func TestDisabled(t *testing.T) {
	var s Store = Disabled{}
	_, err := s.Put(context.Background(), "k", strings.NewReader(""), "text/plain")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, s.Delete(context.Background(), "k"), ErrDisabled)
	assert.NoError(t, s.HealthCheck(context.Background()))
}
