package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/programme-lv/assessor/internal/domain"
)

// Getter is the part of *s3.Client the store uses.
type Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store reads zstd-compressed content from a bucket, using the same
// layout as DirStore under prefix: <prefix>/problems/<id>.toml.zst.
type S3Store struct {
	client Getter
	bucket string
	prefix string
	logger *slog.Logger
}

func NewS3Store(client Getter, bucket, prefix string, logger *slog.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (s *S3Store) Problem(ctx context.Context, id string) (*domain.Problem, error) {
	data, err := s.get(ctx, "problems", id)
	if err != nil {
		return nil, err
	}
	return DecodeProblem(id, data)
}

func (s *S3Store) Test(ctx context.Context, id string) (*domain.Test, error) {
	data, err := s.get(ctx, "tests", id)
	if err != nil {
		return nil, err
	}
	return DecodeTest(id, data)
}

func (s *S3Store) get(ctx context.Context, kind, id string) ([]byte, error) {
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("invalid %s id %q: %w", kind, id, domain.ErrNotFound)
	}
	key := path.Join(s.prefix, kind, id+".toml.zst")

	s.logger.Debug("downloading content", "bucket", s.bucket, "key", key)
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from s3: %w (bucket: %s, key: %s)", kind, err, s.bucket, key)
	}
	defer obj.Body.Close()

	if (obj.ContentType != nil && *obj.ContentType == "application/zstd") ||
		path.Ext(key) == ".zst" {
		return decompress(obj.Body)
	}
	return io.ReadAll(obj.Body)
}
