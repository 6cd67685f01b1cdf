// Package acquire downloads call audio to local storage.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ErrNotFound indicates the remote returned a non-2xx status.
var ErrNotFound = errors.New("audio source not found")

// maxDownloadAttempts bounds in-place retries for transient network errors.
const maxDownloadAttempts = 3

// S3Client is the subset of the S3 API the acquirer needs.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Acquirer fetches audio referenced by a call record to a local path.
type Acquirer struct {
	baseURL    string
	httpClient *http.Client
	s3Client   S3Client
}

// New creates an acquirer. baseURL prefixes relative audio references.
// s3Client may be nil when no s3:// sources are expected.
func New(baseURL string, timeout time.Duration, s3Client S3Client) *Acquirer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Acquirer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		s3Client:   s3Client,
	}
}

// Resolve turns a stored audio reference into a fetchable location.
// Absolute URLs and filesystem paths pass through; anything else is
// joined onto the configured base URL.
func (a *Acquirer) Resolve(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "s3://") {
		return ref
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	if a.baseURL == "" {
		return ref
	}
	return a.baseURL + "/" + strings.TrimLeft(ref, "/")
}

// Fetch streams the audio at ref to dest, creating parent directories.
// The file is written under a temporary name and renamed on completion so
// a failed download never leaves a partial file under the final name.
func (a *Acquirer) Fetch(ctx context.Context, ref, dest string) error {
	src := a.Resolve(ref)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}

	tmp := dest + ".partial"
	defer os.Remove(tmp)

	var err error
	switch {
	case strings.HasPrefix(src, "s3://"):
		err = a.fetchS3(ctx, src, tmp)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		err = a.fetchHTTP(ctx, src, tmp)
	default:
		err = copyFile(src, tmp)
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}

	logrus.WithFields(logrus.Fields{"source": src, "dest": dest}).Info("Audio acquired")
	return nil
}

// fetchHTTP downloads src with capped exponential backoff on transient
// failures. A definitive non-2xx status is not retried.
func (a *Acquirer) fetchHTTP(ctx context.Context, src, tmp string) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxDownloadAttempts-1), ctx)

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			logrus.WithError(err).WithField("url", src).Warn("Download attempt failed")
			return fmt.Errorf("download %s: %w", src, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := fmt.Errorf("%w: %s returned %s", ErrNotFound, src, resp.Status)
			if resp.StatusCode >= 500 {
				return err // server errors may be transient
			}
			return backoff.Permanent(err)
		}

		return writeStream(tmp, resp.Body)
	}, policy)
}

func (a *Acquirer) fetchS3(ctx context.Context, src, tmp string) error {
	if a.s3Client == nil {
		return fmt.Errorf("s3 source %s but no S3 client configured", src)
	}

	u, err := url.Parse(src)
	if err != nil {
		return fmt.Errorf("parse s3 url %s: %w", src, err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return fmt.Errorf("malformed s3 url %s", src)
	}

	out, err := a.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("s3 get %s: %w", src, err)
	}
	defer out.Body.Close()

	return writeStream(tmp, out.Body)
}

// writeStream copies r to path without buffering the whole payload.
func writeStream(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()
	return writeStream(dst, f)
}
