// Package publish uploads build artifacts to S3-compatible storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/logger"
)

// ErrMissingEnv is returned when S3 settings are incomplete.
var ErrMissingEnv = errors.New("missing env variables")

// Extensions that count as artifacts.
var Extensions = []string{".zip", ".apk"}

// Uploader is the storage surface used by Publisher.
type Uploader interface {
	FPutObject(ctx context.Context, bucket, object, path string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher uploads artifacts from a reports directory.
type Publisher struct {
	cfg     config.S3Config
	client  Uploader
	journal *journal.Journal
}

// New validates the S3 settings of cfg and connects a minio client.
func New(cfg *config.Config, j *journal.Journal) (*Publisher, error) {
	if missing := cfg.S3Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}
	host, secure, err := endpoint(cfg.S3.Endpoint)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		Secure: secure,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Publisher{cfg: cfg.S3, client: client, journal: j}, nil
}

// NewWithUploader uses an existing storage client.
func NewWithUploader(cfg config.S3Config, u Uploader, j *journal.Journal) *Publisher {
	return &Publisher{cfg: cfg, client: u, journal: j}
}

// endpoint splits an endpoint URL into a minio host and TLS flag.
// A bare host is treated as https.
func endpoint(raw string) (string, bool, error) {
	if !strings.Contains(raw, "://") {
		return strings.TrimRight(raw, "/"), true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("parse s3 endpoint: no host in %q", raw)
	}
	return u.Host, u.Scheme == "https", nil
}

// Artifacts lists the artifact files directly inside dir, sorted.
func Artifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range Extensions {
			if ext == want {
				out = append(out, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Publish uploads every artifact in dir under its base name and returns the
// uploaded object names.
func (p *Publisher) Publish(ctx context.Context, dir string) ([]string, error) {
	files, err := Artifacts(dir)
	if err != nil {
		return nil, err
	}
	var uploaded []string
	for _, path := range files {
		name := filepath.Base(path)
		info, err := p.client.FPutObject(ctx, p.cfg.Bucket, name, path, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		if err != nil {
			return uploaded, fmt.Errorf("upload %s: %w", name, err)
		}
		logger.Info("artifact uploaded", "path", path, "bucket", p.cfg.Bucket, "size", info.Size)
		fmt.Printf("   ☁️  Uploaded %s -> %s/%s\n", path, p.cfg.Bucket, name)
		uploaded = append(uploaded, name)
	}
	if p.journal != nil && len(uploaded) > 0 {
		p.journal.Log("Publish", fmt.Sprintf("uploaded %s", strings.Join(uploaded, ", ")))
	}
	return uploaded, nil
}

// ArtifactURLs returns <endpoint>/<bucket>/<name> for each artifact in dir.
// Incomplete S3 settings yield no URLs.
func ArtifactURLs(cfg *config.Config, dir string) []string {
	if len(cfg.S3Missing()) > 0 {
		return nil
	}
	files, err := Artifacts(dir)
	if err != nil {
		return nil
	}
	base := strings.TrimRight(cfg.S3.Endpoint, "/")
	urls := make([]string, 0, len(files))
	for _, f := range files {
		urls = append(urls, fmt.Sprintf("%s/%s/%s", base, cfg.S3.Bucket, filepath.Base(f)))
	}
	return urls
}
