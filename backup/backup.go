// Package backup keeps snapshots of a store in S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kjk/flatkv/config"
	"github.com/kjk/flatkv/kvfile"
	"github.com/kjk/flatkv/log"
	"github.com/kjk/flatkv/snapshot"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Client struct {
	Client *minio.Client
	Bucket string
	prefix string
}

// New creates a client. It doesn't talk to the server, see CheckBucket.
func New(cfg *config.Backup) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("must provide config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Region: cfg.Region,
		Secure: !cfg.Insecure,
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		Client: mc,
		Bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// CheckBucket returns an error if the bucket doesn't exist
func (c *Client) CheckBucket(ctx context.Context) error {
	found, err := c.Client.BucketExists(ctx, c.Bucket)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return nil
}

// RemotePath returns object key for a backup name
func (c *Client) RemotePath(name string) string {
	name = strings.TrimPrefix(name, "/")
	if c.prefix == "" {
		return name
	}
	return path.Join(c.prefix, name)
}

// DefaultName is a timestamped, brotli-compressed backup name for dbPath
// e.g. kv.db => kv.db.20260102-150405.br
func DefaultName(dbPath string, t time.Time) string {
	return filepath.Base(dbPath) + "." + t.UTC().Format("20060102-150405") + ".br"
}

// Push uploads records of store at dbPath as a snapshot named name.
// Compression is picked from name's extension.
func (c *Client) Push(ctx context.Context, dbPath string, name string) (minio.UploadInfo, error) {
	var info minio.UploadInfo
	s, err := kvfile.Open(dbPath)
	if err != nil {
		return info, err
	}
	defer s.Close()
	d, err := snapshot.Marshal(name, s.Snapshot())
	if err != nil {
		return info, err
	}
	remotePath := c.RemotePath(name)
	opts := minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		UserMetadata: map[string]string{
			"records": fmt.Sprintf("%d", s.Len()),
		},
	}
	info, err = c.Client.PutObject(ctx, c.Bucket, remotePath, bytes.NewReader(d), int64(len(d)), opts)
	if err != nil {
		return info, fmt.Errorf("upload of '%s' as '%s' failed: %w", dbPath, remotePath, err)
	}
	log.Verbosef("backup: uploaded '%s' as '%s', %d bytes\n", dbPath, remotePath, len(d))
	log.Event("backup_push", "path", dbPath, "remote", remotePath, "records", s.Len(), "size", len(d))
	return info, nil
}

// Fetch downloads and decodes snapshot named name
func (c *Client) Fetch(ctx context.Context, name string) (map[string]string, error) {
	remotePath := c.RemotePath(name)
	obj, err := c.Client.GetObject(ctx, c.Bucket, remotePath, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	d, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("download of '%s' failed: %w", remotePath, err)
	}
	return snapshot.Unmarshal(name, d)
}

// Pull replaces content of store at dbPath with snapshot named name
func (c *Client) Pull(ctx context.Context, name string, dbPath string) (int, error) {
	m, err := c.Fetch(ctx, name)
	if err != nil {
		return 0, err
	}
	if err = snapshot.Restore(dbPath, m); err != nil {
		return 0, err
	}
	log.Event("backup_pull", "path", dbPath, "remote", c.RemotePath(name), "records", len(m))
	return len(m), nil
}

// List returns backups whose names start with prefix
func (c *Client) List(ctx context.Context, prefix string) ([]minio.ObjectInfo, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    c.RemotePath(prefix),
		Recursive: true,
	}
	// stops minio's listing goroutine if we return early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var res []minio.ObjectInfo
	for oi := range c.Client.ListObjects(ctx, c.Bucket, opts) {
		if oi.Err != nil {
			return nil, oi.Err
		}
		res = append(res, oi)
	}
	return res, nil
}

func (c *Client) Remove(ctx context.Context, name string) error {
	return c.Client.RemoveObject(ctx, c.Bucket, c.RemotePath(name), minio.RemoveObjectOptions{})
}
