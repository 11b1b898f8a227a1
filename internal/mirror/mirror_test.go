package mirror

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seeqbio/cabin/internal/dataset"
)

var (
	_ dataset.MirrorStore = (*S3)(nil)
	_ dataset.MirrorStore = (*Dir)(nil)
)

// fakeS3 keeps objects in memory. Multipart calls are not supported; the
// test files stay below the uploader's part size.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func objectKey(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectKey(in.Bucket, in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[objectKey(in.Bucket, in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectKey(in.Bucket, in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

var errMultipart = errors.New("multipart upload not supported by fake")

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

// exercise runs the same round trip against any store.
func exercise(t *testing.T, m dataset.MirrorStore) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tsv")
	require.NoError(t, os.WriteFile(src, []byte("mirrored"), 0o644))
	const key = "genes/Genes::v1::abcd1234.tsv"

	ok, err := m.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Put(ctx, src, key))
	ok, err = m.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	dst := filepath.Join(dir, "copy", "dst.tsv")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, m.Get(ctx, key, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "mirrored", string(data))

	require.NoError(t, m.Delete(ctx, key))
	ok, err = m.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, m.Delete(ctx, key))

	assert.Error(t, m.Get(ctx, key, dst))
}

func TestS3_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	m := NewS3FromAPI(fake, "bucket", "cabin")
	exercise(t, m)
}

func TestS3_KeysUsePrefix(t *testing.T) {
	fake := newFakeS3()
	m := NewS3FromAPI(fake, "bucket", "cabin")
	src := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, m.Put(context.Background(), src, "a/b.tsv"))
	assert.Contains(t, fake.objects, "bucket/cabin/a/b.tsv")
	assert.Equal(t, "s3://bucket/cabin/a/b.tsv", m.URL("a/b.tsv"))
	assert.Equal(t, "s3://bucket/a", NewS3FromAPI(fake, "bucket", "").URL("a"))
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{})
	assert.ErrorContains(t, err, "bucket is required")
}

func TestDir_RoundTrip(t *testing.T) {
	m, err := NewDir(filepath.Join(t.TempDir(), "mirror"))
	require.NoError(t, err)
	exercise(t, m)
}

func TestDir_RejectsEscapingKeys(t *testing.T) {
	m, err := NewDir(t.TempDir())
	require.NoError(t, err)

	_, err = m.Exists(context.Background(), "../outside")
	assert.ErrorContains(t, err, "escapes the mirror root")
}
