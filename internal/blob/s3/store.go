// Package s3 stores blobs in an S3-compatible bucket (AWS S3 or MinIO).
package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"carelog/internal/blob"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/logger"
)

const component = "s3"

// Config holds construction parameters. Credentials fall back to the default chain.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, e.g. a MinIO URL
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// Store implements blob.Store on a single bucket. Keys map to object keys directly.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	log     logger.Logger
}

// New loads the AWS configuration and returns a store for cfg.Bucket.
func New(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.NewConfigurationError("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.NewConfigurationError("load aws configuration").WithCause(err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, log), nil
}

// NewWithClient wraps an already configured client.
func NewWithClient(client *s3.Client, bucket string, log logger.Logger) *Store {
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		log:     logger.OrNop(log).WithComponent(component),
	}
}

func (s *Store) ref(key string) blob.ContentRef {
	return blob.ContentRef{Scheme: blob.SchemeS3, Bucket: s.bucket, Key: key}
}

func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) (blob.ContentRef, error) {
	if err := blob.ValidateKey(key); err != nil {
		return blob.ContentRef{}, err
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return blob.ContentRef{}, classify("upload blob", s.ref(key), err)
	}
	s.log.Debugf("Uploaded %d bytes to %s", len(data), key)
	return s.ref(key), nil
}

func (s *Store) Download(ctx context.Context, ref blob.ContentRef) ([]byte, error) {
	if err := blob.CheckRef(ref, blob.SchemeS3, s.bucket); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(ref.Key)})
	if err != nil {
		return nil, classify("download blob", ref, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.NewTransportError("read blob body", err).WithComponent(component)
	}
	return data, nil
}

// URL presigns a GET for ref.
func (s *Store) URL(ctx context.Context, ref blob.ContentRef, expiry time.Duration) (string, error) {
	if err := blob.CheckRef(ref, blob.SchemeS3, s.bucket); err != nil {
		return "", err
	}
	if expiry <= 0 {
		expiry = blob.DefaultURLExpiry
	}
	req, err := s.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(ref.Key)},
		func(po *s3.PresignOptions) { po.Expires = expiry })
	if err != nil {
		return "", classify("presign blob", ref, err)
	}
	return req.URL, nil
}

// Delete removes ref. S3 answers success for missing keys.
func (s *Store) Delete(ctx context.Context, ref blob.ContentRef) error {
	if err := blob.CheckRef(ref, blob.SchemeS3, s.bucket); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(ref.Key)})
	if err != nil {
		err = classify("delete blob", ref, err)
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

func classify(op string, ref blob.ContentRef, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if stderrors.As(err, &noKey) || stderrors.As(err, &notFound) {
		return errors.NewNotFoundError("blob").WithDetail("ref", ref.String()).WithCause(err)
	}
	var respErr *awshttp.ResponseError
	if stderrors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return errors.NewNotFoundError("blob").WithDetail("ref", ref.String()).WithCause(err)
		case http.StatusForbidden, http.StatusUnauthorized:
			err = stderrors.Join(errors.ErrForbidden, err)
		}
	}
	return errors.NewTransportError(op, err).WithComponent(component).WithDetail("ref", ref.String())
}
