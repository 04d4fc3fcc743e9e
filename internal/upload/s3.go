package upload

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PublicURL string
	AccessKey string
	SecretKey string
}

// S3Store writes objects to an S3-compatible bucket.
type S3Store struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// NewS3Store builds a client from the default AWS credential chain, or from
// static keys when both are set. A custom endpoint switches to path-style
// addressing for MinIO and R2.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	public := strings.TrimRight(cfg.PublicURL, "/")
	if public == "" {
		switch {
		case cfg.Endpoint != "":
			public = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		default:
			public = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, awsCfg.Region)
		}
	}
	return &S3Store{client: client, bucket: cfg.Bucket, publicURL: public}, nil
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.publicURL + "/" + key, nil
}

// MemoryStore keeps objects in memory and serves them under BaseURL. Used in
// development and tests.
type MemoryStore struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]Object
}

// Object is a stored blob.
type Object struct {
	ContentType string
	Data        []byte
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{BaseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string]Object)}
}

func (m *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	m.mu.Lock()
	m.objects[key] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	m.mu.Unlock()
	return m.BaseURL + "/" + key, nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}
