package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"landing-page-generator/internal/apperrors"
	"landing-page-generator/internal/config"
)

const htmlContentType = "text/html; charset=utf-8"

// objectAPI is the subset of the S3 client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps artifacts in one bucket. Locations look like s3://bucket/key.
type S3Store struct {
	client objectAPI
	bucket string
}

func NewS3Store(client objectAPI, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ArtifactS3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ArtifactS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ArtifactS3Endpoint)
		}
		o.UsePathStyle = cfg.ArtifactS3PathStyle
	}), nil
}

func (s *S3Store) Upload(ctx context.Context, content, name string) (string, error) {
	key, err := sanitizeKey(name)
	if err != nil {
		return "", apperrors.ArtifactStore("invalid artifact name", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String(htmlContentType),
	})
	if err != nil {
		return "", apperrors.ArtifactStore("put object", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *S3Store) Fetch(ctx context.Context, location string) (string, error) {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		return "", err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return "", apperrors.NotFound("artifact not found")
		}
		return "", apperrors.ArtifactStore("get object", err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return "", apperrors.ArtifactStore("read object", err)
	}
	return string(body), nil
}

func (s *S3Store) Replace(ctx context.Context, oldLocation, content, name string) (string, error) {
	location, err := s.Upload(ctx, content, name)
	if err != nil {
		return "", err
	}
	if oldLocation != "" && oldLocation != location {
		if err := s.Delete(ctx, oldLocation); err != nil {
			return "", err
		}
	}
	return location, nil
}

func (s *S3Store) Delete(ctx context.Context, location string) error {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		return apperrors.ArtifactStore("delete object", err)
	}
	return nil
}

func parseS3Location(location string) (string, string, error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", apperrors.ArtifactStore(fmt.Sprintf("unsupported location %q", location), nil)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", apperrors.ArtifactStore(fmt.Sprintf("malformed location %q", location), nil)
	}
	return bucket, key, nil
}
