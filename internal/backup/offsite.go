package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/chronos-inventory/chronos/internal/model"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Mirror keeps an offsite copy of backup artifacts in S3-compatible storage.
// Mirroring is best-effort: the local artifact remains authoritative and
// mirror failures never fail the local operation.
type Mirror struct {
	client s3Client
	bucket string
	logger *slog.Logger
}

// NewMirror creates a Mirror, or nil when the configuration is incomplete.
func NewMirror(cfg S3Config, logger *slog.Logger) *Mirror {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil
	}
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &Mirror{client: s3.New(opts), bucket: cfg.Bucket, logger: logger}
}

// Upload copies the artifact to the offsite bucket under backups/<name>.
func (m *Mirror) Upload(ctx context.Context, artifact *model.BackupArtifact) error {
	file, err := os.Open(artifact.Path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String("backups/" + artifact.Name),
		Body:          file,
		ContentLength: aws.Int64(artifact.Size),
	})
	if err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	m.logger.Info("artifact mirrored offsite", "name", artifact.Name)
	return nil
}

// Delete removes the offsite copy of a swept artifact.
func (m *Mirror) Delete(ctx context.Context, name string) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String("backups/" + name),
	})
	if err != nil {
		return fmt.Errorf("delete offsite artifact: %w", err)
	}
	return nil
}
