package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"messenger-core/config"
)

// maxDeleteBatch is the object limit of a single DeleteObjects call.
const maxDeleteBatch = 1000

type S3 struct {
	client        *s3.Client
	uploader      *manager.Uploader
	bucket        string
	publicBaseURL string
}

var _ Store = (*S3)(nil)

func NewS3(ctx context.Context, s config.S3Settings) (*S3, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(s.Region))
	if err != nil {
		return nil, err
	}
	return NewS3FromClient(s3.NewFromConfig(cfg), s.Bucket, s.PublicBaseURL), nil
}

func NewS3FromClient(client *s3.Client, bucket, publicBaseURL string) *S3 {
	return &S3{
		client:        client,
		uploader:      manager.NewUploader(client),
		bucket:        bucket,
		publicBaseURL: publicBaseURL,
	}
}

func (s *S3) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	return out.Location, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *S3) DeleteMany(ctx context.Context, keys []string) error {
	var failed []error
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			failed = append(failed, err)
			continue
		}
		for _, e := range out.Errors {
			failed = append(failed, fmt.Errorf("delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return errors.Join(failed...)
}
