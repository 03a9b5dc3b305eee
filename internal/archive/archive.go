// Package archive keeps a copy of a board in object storage before it is cleared.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"whiteboard-backend/internal/canvas"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
)

// Uploader is the part of the S3 client the archive needs.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store 초기화 직전 보드를 S3에 보관하는 DocumentStore 데코레이터
//
// Archive failures are logged and never block the clear.
type Store struct {
	store.DocumentStore

	uploader Uploader
	bucket   string
	prefix   string
	fonts    *canvas.FontMeasurer
	export   canvas.ExportOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewS3Client S3 클라이언트 생성. 키가 없으면 기본 자격 증명 체인을 사용한다.
func NewS3Client(ctx context.Context, cfg config.ArchiveConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// New wraps inner so Clear archives the board first.
func New(inner store.DocumentStore, up Uploader, cfg config.ArchiveConfig, fonts *canvas.FontMeasurer, logger *zap.Logger) *Store {
	if fonts == nil {
		fonts = canvas.NewFontMeasurer()
	}
	return &Store{
		DocumentStore: inner,
		uploader:      up,
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		fonts:         fonts,
		export:        canvas.DefaultExportOptions(),
		logger:        logger.Named("archive"),
		now:           time.Now,
	}
}

// Wrap decorates inner with an S3 archive when a bucket is configured.
func Wrap(ctx context.Context, inner store.DocumentStore, cfg config.ArchiveConfig, logger *zap.Logger) (store.DocumentStore, error) {
	if !cfg.Enabled() {
		return inner, nil
	}
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("board archive enabled", zap.String("bucket", cfg.Bucket), zap.String("prefix", cfg.Prefix))
	return New(inner, client, cfg, nil, logger), nil
}

// Clear archives the current board, then clears it.
func (s *Store) Clear(ctx context.Context, projectID, mutationID string) (*model.Document, error) {
	doc, err := s.DocumentStore.Get(ctx, projectID)
	if err != nil {
		s.logger.Warn("archive read failed", zap.String("projectId", projectID), zap.Error(err))
	} else if doc != nil && !doc.Empty() {
		if _, err := s.Archive(ctx, *doc); err != nil {
			s.logger.Warn("archive upload failed", zap.String("projectId", projectID), zap.Error(err))
		}
	}
	return s.DocumentStore.Clear(ctx, projectID, mutationID)
}

// Archive uploads the board as JSON and PNG and returns the object keys.
func (s *Store) Archive(ctx context.Context, doc model.Document) ([]string, error) {
	base := s.keyBase(doc.ProjectID)

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode board: %w", err)
	}
	img, err := canvas.RenderPNG(doc, s.fonts, s.export)
	if err != nil {
		return nil, fmt.Errorf("render board: %w", err)
	}

	objects := []struct {
		key         string
		body        []byte
		contentType string
	}{
		{base + ".json", data, "application/json"},
		{base + ".png", img, "image/png"},
	}

	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		_, err := s.uploader.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(o.key),
			Body:        bytes.NewReader(o.body),
			ContentType: aws.String(o.contentType),
			Metadata: map[string]string{
				"project-id": doc.ProjectID,
				"version":    fmt.Sprint(doc.Version),
			},
		})
		if err != nil {
			return keys, fmt.Errorf("put %s: %w", o.key, err)
		}
		keys = append(keys, o.key)
	}

	s.logger.Info("board archived",
		zap.String("projectId", doc.ProjectID),
		zap.Int64("version", doc.Version),
		zap.Strings("keys", keys))
	return keys, nil
}

func (s *Store) keyBase(projectID string) string {
	return path.Join(s.prefix, projectID, s.now().UTC().Format("20060102T150405.000Z"))
}
