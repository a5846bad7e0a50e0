// Package blob stores uploaded page assets in an S3-compatible bucket.
// Browsers upload and download directly with presigned URLs; the server
// never proxies object bytes.
package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// DefaultPresignTTL is how long presigned URLs stay valid.
const DefaultPresignTTL = 15 * time.Minute

var (
	ErrBucketRequired = errors.New("blob bucket is required")
	ErrInvalidKey     = errors.New("invalid object key")
)

// Config holds bucket access settings.
type Config struct {
	Bucket          string        `mapstructure:"bucket"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"` // S3-compatible endpoint, empty for AWS
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UsePathStyle    bool          `mapstructure:"use_path_style"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl"`
}

// PresignedRequest is a signed request the browser performs itself.
type PresignedRequest struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ObjectKey string            `json:"objectKey"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Store presigns object access for one bucket.
type Store struct {
	bucket    string
	ttl       time.Duration
	presigner *s3.PresignClient
	logger    *slog.Logger
}

// New creates a Store. Static credentials are used when AccessKeyID is set.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = DefaultPresignTTL
	}

	awsCfg := aws.Config{
		Region: cfg.Region,
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Store{
		bucket:    cfg.Bucket,
		ttl:       cfg.PresignTTL,
		presigner: s3.NewPresignClient(client),
		logger:    logger.With("component", "blob"),
	}, nil
}

// NewObjectKey returns a fresh key under the user's prefix, keeping the
// original file extension.
func NewObjectKey(userID, fileName string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(fileName, "\\", "/"))))
	if len(ext) > 10 || strings.ContainsAny(ext, " ?#%") {
		ext = ""
	}
	return userID + "/" + uuid.New().String() + ext
}

// OwnsKey reports whether key was issued under userID's prefix.
func OwnsKey(userID, key string) bool {
	if userID == "" || strings.Contains(key, "..") {
		return false
	}
	return strings.HasPrefix(key, userID+"/") && len(key) > len(userID)+1
}

// PresignUpload signs a PUT of key with the given content type.
func (s *Store) PresignUpload(ctx context.Context, key, contentType string) (*PresignedRequest, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		s.logger.Error("presign upload failed", "key", key, "error", err)
		return nil, fmt.Errorf("presign upload %s: %w", key, err)
	}

	headers := map[string]string{"Content-Type": contentType}
	return &PresignedRequest{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   headers,
		ObjectKey: key,
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
	}, nil
}

// PresignDownload signs a GET of key.
func (s *Store) PresignDownload(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign download %s: %w", key, err)
	}
	return req.URL, nil
}
