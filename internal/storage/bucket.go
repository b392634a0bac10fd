// Package storage provides the position-independent range-read abstraction
// (Bucket) that the VersaTiles and PMTiles container readers use, whether
// the archive lives on local disk, behind HTTP, or in a cloud blob store.
// The tar and directory readers read local files directly.
package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"

	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Bucket is a position-independent, concurrency-safe source of byte ranges,
// abstracting over local files, HTTP range requests, and cloud blob stores
// so container readers never need to know where their bytes come from.
type Bucket interface {
	Close() error
	NewRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	NewRangeReaderEtag(ctx context.Context, key string, offset, length int64, etag string) (io.ReadCloser, string, error)
}

// RefreshRequiredError indicates the remote object changed since the last
// read (etag mismatch, or a range that no longer fits).
type RefreshRequiredError struct {
	StatusCode int
}

func (e *RefreshRequiredError) Error() string {
	return fmt.Sprintf("remote file changed (status %d)", e.StatusCode)
}

// IsRefreshRequired reports whether err indicates the caller should refetch
// its cached directory/header before retrying.
func IsRefreshRequired(err error) bool {
	var r *RefreshRequiredError
	return xerrors.As(err, &r)
}

// FileBucket is a Bucket backed by a directory on local disk.
type FileBucket struct {
	Path string
}

func (b FileBucket) NewRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	body, _, err := b.NewRangeReaderEtag(ctx, key, offset, length, "")
	return body, err
}

func (b FileBucket) NewRangeReaderEtag(_ context.Context, key string, offset, length int64, etag string) (io.ReadCloser, string, error) {
	name := filepath.Join(b.Path, key)
	file, err := os.Open(name)
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "opening %s", name)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, "", xerrors.Wrap(err, "stat")
	}
	newEtag := fileEtag(info.ModTime().UnixNano(), info.Size())
	if etag != "" && etag != newEtag {
		return nil, "", &RefreshRequiredError{}
	}

	result := make([]byte, length)
	read, err := file.ReadAt(result, offset)
	if err != nil && err != io.EOF {
		return nil, "", xerrors.Wrapf(err, "reading %s at offset %d", name, offset)
	}
	if int64(read) != length {
		return nil, "", xerrors.Errorf("expected to read %d bytes from %s but got %d", length, name, read)
	}
	return io.NopCloser(bytes.NewReader(result)), newEtag, nil
}

func (b FileBucket) Close() error { return nil }

func fileEtag(modTime int64, size int64) string {
	hash := md5.Sum([]byte(fmt.Sprintf("%d %d", modTime, size)))
	return hex.EncodeToString(hash[:])
}

// HTTPClient lets tests swap in a mock HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPBucket is a Bucket backed by HTTP range requests.
type HTTPBucket struct {
	BaseURL string
	Client  HTTPClient
}

func (b HTTPBucket) NewRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	body, _, err := b.NewRangeReaderEtag(ctx, key, offset, length, "")
	return body, err
}

func (b HTTPBucket) NewRangeReaderEtag(ctx context.Context, key string, offset, length int64, etag string) (io.ReadCloser, string, error) {
	reqURL := strings.TrimSuffix(b.BaseURL, "/") + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", xerrors.Wrap(err, "building range request")
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", xerrors.Wrap(err, "performing range request")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		if isRefreshRequiredCode(resp.StatusCode) {
			return nil, "", &RefreshRequiredError{StatusCode: resp.StatusCode}
		}
		return nil, "", xerrors.Errorf("HTTP error fetching %s: %d", reqURL, resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("ETag"), nil
}

func (b HTTPBucket) Close() error { return nil }

func isRefreshRequiredCode(code int) bool {
	return code == http.StatusPreconditionFailed || code == http.StatusRequestedRangeNotSatisfiable
}

// BlobBucket adapts a gocloud.dev/blob Bucket (local, S3, GCS, Azure, ...)
// to the Bucket interface.
type BlobBucket struct {
	Bucket *blob.Bucket
}

func (b BlobBucket) NewRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	body, _, err := b.NewRangeReaderEtag(ctx, key, offset, length, "")
	return body, err
}

func (b BlobBucket) NewRangeReaderEtag(ctx context.Context, key string, offset, length int64, etag string) (io.ReadCloser, string, error) {
	reader, err := b.Bucket.NewRangeReader(ctx, key, offset, length, nil)
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "range-reading %s", key)
	}
	attrs, err := b.Bucket.Attributes(ctx, key)
	if err != nil {
		reader.Close()
		return nil, "", xerrors.Wrapf(err, "reading attributes for %s", key)
	}
	if etag != "" && attrs.ETag != "" && attrs.ETag != etag {
		reader.Close()
		return nil, "", &RefreshRequiredError{}
	}
	return reader, attrs.ETag, nil
}

func (b BlobBucket) Close() error { return b.Bucket.Close() }

// NormalizeBucketKey splits a bare key or URL into (bucketURL, key),
// defaulting to a local file:// bucket rooted at the key's directory when
// no bucket scheme is given.
func NormalizeBucketKey(bucketURL, prefix, key string) (string, string, error) {
	if bucketURL != "" {
		return bucketURL, key, nil
	}
	if strings.HasPrefix(key, "http") {
		u, err := url.Parse(key)
		if err != nil {
			return "", "", xerrors.Wrap(err, "parsing key as URL")
		}
		dir, file := path.Split(u.Path)
		dir = strings.TrimSuffix(dir, "/")
		return u.Scheme + "://" + u.Host + dir, file, nil
	}
	fileProto := "file://"
	if prefix != "" {
		abs, err := filepath.Abs(prefix)
		if err != nil {
			return "", "", err
		}
		return fileProto + filepath.ToSlash(abs), key, nil
	}
	abs, err := filepath.Abs(key)
	if err != nil {
		return "", "", err
	}
	return fileProto + filepath.ToSlash(filepath.Dir(abs)), filepath.Base(abs), nil
}

// OpenBucket opens a Bucket for bucketURL, dispatching on its scheme: plain
// HTTP(S), a local file:// root, or a gocloud.dev/blob cloud provider whose
// driver drivers.go registers (s3:// and gs://).
func OpenBucket(ctx context.Context, bucketURL, bucketPrefix string) (Bucket, error) {
	switch {
	case strings.HasPrefix(bucketURL, "http"):
		return HTTPBucket{BaseURL: bucketURL}, nil
	case strings.HasPrefix(bucketURL, "file://"):
		return FileBucket{Path: filepath.FromSlash(strings.TrimPrefix(bucketURL, "file://"))}, nil
	default:
		b, err := blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, xerrors.Wrapf(err, "opening bucket %s", bucketURL)
		}
		if bucketPrefix != "" && bucketPrefix != "/" && bucketPrefix != "." {
			b = blob.PrefixedBucket(b, path.Clean(bucketPrefix)+"/")
		}
		return BlobBucket{Bucket: b}, nil
	}
}
