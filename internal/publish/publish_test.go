package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/journal"
)

type fakeUploader struct {
	objects map[string]string
	fail    error
}

func (f *fakeUploader) FPutObject(_ context.Context, bucket, object, path string, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.fail != nil {
		return minio.UploadInfo{}, f.fail
	}
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	f.objects[bucket+"/"+object] = path
	return minio.UploadInfo{Bucket: bucket, Key: object}, nil
}

func s3Config() *config.Config {
	return &config.Config{S3: config.S3Config{
		Endpoint:  "https://s3.example.com/",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "builds",
	}}
}

func reportsDir(t *testing.T) string {
	dir := t.TempDir()
	for _, name := range []string{"game.zip", "game.APK", "summary.html"} {
		os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644)
	}
	os.MkdirAll(filepath.Join(dir, "nested.zip"), 0755)
	return dir
}

func TestNewMissingEnv(t *testing.T) {
	cfg := s3Config()
	cfg.S3.AccessKey = ""
	cfg.S3.Bucket = ""
	_, err := New(cfg, nil)
	require.ErrorIs(t, err, ErrMissingEnv)
	assert.Equal(t, "missing env variables: S3_ACCESS_KEY, S3_BUCKET", err.Error())
}

func TestNew(t *testing.T) {
	p, err := New(s3Config(), nil)
	require.NoError(t, err)
	assert.NotNil(t, p.client)
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		raw    string
		host   string
		secure bool
	}{
		{"https://s3.example.com", "s3.example.com", true},
		{"http://localhost:9000/", "localhost:9000", false},
		{"minio.local:9000", "minio.local:9000", true},
	}
	for _, tt := range tests {
		host, secure, err := endpoint(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.host, host, tt.raw)
		assert.Equal(t, tt.secure, secure, tt.raw)
	}
}

func TestArtifacts(t *testing.T) {
	dir := reportsDir(t)
	files, err := Artifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "game.APK"), filepath.Join(dir, "game.zip")}, files)

	none, err := Artifacts(filepath.Join(dir, "missing"))
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestPublish(t *testing.T) {
	dir := reportsDir(t)
	j := journal.New(filepath.Join(t.TempDir(), "agent_journal.log"))
	up := &fakeUploader{}
	p := NewWithUploader(s3Config().S3, up, j)

	names, err := p.Publish(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"game.APK", "game.zip"}, names)
	assert.Equal(t, filepath.Join(dir, "game.zip"), up.objects["builds/game.zip"])

	tail, _ := j.Tail(1)
	require.Len(t, tail, 1)
	assert.Contains(t, tail[0], "[Publish] uploaded game.APK, game.zip")
}

func TestPublishError(t *testing.T) {
	p := NewWithUploader(s3Config().S3, &fakeUploader{fail: errors.New("denied")}, nil)
	_, err := p.Publish(context.Background(), reportsDir(t))
	assert.ErrorContains(t, err, "upload game.APK: denied")
}

func TestArtifactURLs(t *testing.T) {
	dir := reportsDir(t)
	assert.Equal(t, []string{
		"https://s3.example.com/builds/game.APK",
		"https://s3.example.com/builds/game.zip",
	}, ArtifactURLs(s3Config(), dir))

	assert.Nil(t, ArtifactURLs(&config.Config{}, dir))
}
