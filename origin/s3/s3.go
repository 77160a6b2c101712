// Package s3 is an origin store on an S3-compatible bucket via minio-go.
//
// Metadata and expiry travel as object user metadata. S3 has no per-object
// TTL, so expired objects are hidden on read and list and left for a bucket
// lifecycle rule to reclaim.
package s3

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/unkn0wn-root/edgekv/origin"
)

const (
	metaKey   = "Edgekv-Metadata"
	expiryKey = "Edgekv-Expires"
)

type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Prefix namespaces every object key.
	Prefix string
	// Client overrides Endpoint/AccessKey/SecretKey when set.
	Client *minio.Client
}

func (c *Config) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when client is not provided")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("credentials are required when client is not provided")
	}
	return nil
}

type Store struct {
	client *minio.Client
	bucket string
	prefix string
	now    func() time.Time
}

var _ origin.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
	}
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, now: time.Now}, nil
}

// translate maps missing objects to origin.ErrNotFound.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return origin.ErrNotFound
	}
	return fmt.Errorf("s3: %w", err)
}

// userMeta looks a user metadata key up case-insensitively.
func userMeta(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) || strings.EqualFold(k, "X-Amz-Meta-"+key) {
			return v, true
		}
	}
	return "", false
}

func decodeMeta(m map[string]string) ([]byte, int64) {
	var meta []byte
	if raw, ok := userMeta(m, metaKey); ok && raw != "" {
		if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
			meta = b
		}
	}
	var exp int64
	if raw, ok := userMeta(m, expiryKey); ok {
		exp, _ = strconv.ParseInt(raw, 10, 64)
	}
	return meta, exp
}

func (s *Store) expired(exp int64) bool {
	return exp > 0 && !s.now().Before(time.Unix(exp, 0))
}

func (s *Store) GetWithMetadata(ctx context.Context, key string, _ origin.GetOptions) (*origin.Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.prefix+key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, translate(err)
	}
	meta, exp := decodeMeta(info.UserMetadata)
	if s.expired(exp) {
		_ = obj.Close()
		return nil, origin.ErrNotFound
	}
	return &origin.Object{Body: obj, Metadata: meta}, nil
}

func (s *Store) Get(ctx context.Context, key string, opts origin.GetOptions) (io.ReadCloser, error) {
	o, err := s.GetWithMetadata(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	return o.Body, nil
}

func (s *Store) Put(ctx context.Context, key string, value io.Reader, opts origin.PutOptions) error {
	um := map[string]string{}
	if len(opts.Metadata) > 0 {
		um[metaKey] = base64.StdEncoding.EncodeToString(opts.Metadata)
	}
	if exp := opts.ExpiresAt(s.now()); !exp.IsZero() {
		um[expiryKey] = strconv.FormatInt(exp.Unix(), 10)
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.prefix+key, value, -1, minio.PutObjectOptions{
		UserMetadata: um,
		ContentType:  "application/octet-stream",
	})
	return translate(err)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.prefix+key, minio.RemoveObjectOptions{})
	if err := translate(err); err != nil && !errors.Is(err, origin.ErrNotFound) {
		return err
	}
	return nil
}

func (s *Store) List(ctx context.Context, opts origin.ListOptions) (*origin.ListResult, error) {
	after, err := origin.DecodeCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}
	limit := opts.EffectiveLimit()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // stops the listing goroutine once the page is full

	lo := minio.ListObjectsOptions{
		Prefix:       s.prefix + opts.Prefix,
		Recursive:    true,
		WithMetadata: true,
		MaxKeys:      limit + 1,
	}
	if after != "" {
		lo.StartAfter = s.prefix + after
	}

	res := &origin.ListResult{Complete: true}
	var last string
	for o := range s.client.ListObjects(ctx, s.bucket, lo) {
		if o.Err != nil {
			return nil, translate(o.Err)
		}
		name := strings.TrimPrefix(o.Key, s.prefix)
		if len(res.Keys) == limit {
			res.Complete = false
			res.Cursor = origin.EncodeCursor(last)
			break
		}
		last = name
		meta, exp := decodeMeta(o.UserMetadata)
		if s.expired(exp) {
			continue
		}
		res.Keys = append(res.Keys, origin.ListKey{Name: name, Expiration: exp, Metadata: meta})
	}
	return res, nil
}
