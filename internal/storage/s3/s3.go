// Package s3 backs the blob store contract with an S3 bucket, the backend
// used in production.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/vadimbarashkov/affiliate-publisher/internal/storage"
)

type Store struct {
	client *awss3.Client
	bucket string
}

func New(client *awss3.Client, bucket string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "storage.s3.Store.Get"

	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get object: %w", op, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read object body: %w", op, err)
	}

	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	const op = "storage.s3.Store.Put"

	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("%s: failed to put object: %w", op, err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	const op = "storage.s3.Store.Delete"

	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%s: failed to delete object: %w", op, err)
	}

	return nil
}
