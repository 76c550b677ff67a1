// Package s3copy backs the s3:// side of COPY TO/FROM (spec.md §6) with
// aws-sdk-go-v2's feature/s3/manager, the same uploader/downloader package
// the pack's other repos reach for instead of hand-rolled multipart calls.
package s3copy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// IsS3URI reports whether target uses the s3:// scheme.
func IsS3URI(target string) bool {
	return strings.HasPrefix(target, "s3://")
}

func parseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("s3copy: parse uri %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3copy: not an s3:// uri: %q", uri)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("s3copy: missing bucket in uri %q", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func newClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3copy: load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// writer buffers COPY TO's output in memory and uploads it as a single
// object on Close via manager.Uploader. COPY TO's dataset is already
// materialized row-at-a-time by copyToOp before any byte reaches here, so a
// buffered single-shot upload costs no more than the write side already
// does; a deployment copying output larger than fits in memory should wire
// manager.Uploader's io.Pipe-streaming form instead.
type writer struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
}

// OpenWriter returns an io.WriteCloser that uploads to uri on Close.
func OpenWriter(ctx context.Context, uri string) (io.WriteCloser, error) {
	bucket, key, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	client, err := newClient(ctx)
	if err != nil {
		return nil, err
	}
	return &writer{ctx: ctx, client: client, bucket: bucket, key: key}, nil
}

func (w *writer) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *writer) Close() error {
	uploader := manager.NewUploader(w.client)
	_, err := uploader.Upload(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("s3copy: upload %s/%s: %w", w.bucket, w.key, err)
	}
	return nil
}

// OpenReader downloads uri fully into memory via manager.Downloader's
// concurrent-range-get path and returns it as an io.ReadCloser COPY FROM can
// scan with bufio.Scanner the same way it scans a local file.
func OpenReader(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	client, err := newClient(ctx)
	if err != nil {
		return nil, err
	}
	downloader := manager.NewDownloader(client)
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("s3copy: download %s/%s: %w", bucket, key, err)
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}
