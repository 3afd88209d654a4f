// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package s3 stores audio blobs in an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sigil-dev/wren/internal/audio"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const scheme = "s3"

func init() {
	audio.RegisterBackend("s3", func(cfg *audio.Config) (audio.Store, error) {
		return New(cfg.S3)
	})
}

var _ audio.Store = (*Store)(nil)

// Store keeps blobs as objects under an optional key prefix.
type Store struct {
	client *awss3.Client
	bucket string
	prefix string
}

// New builds a client from static configuration. Without an access key the
// client sends anonymous requests.
func New(cfg audio.S3Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, wrenerr.New(wrenerr.CodeConfigValidateInvalidValue, "s3 audio backend requires a bucket")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := awss3.Options{
		Region:                     region,
		UsePathStyle:               cfg.UsePathStyle,
		Credentials:                aws.AnonymousCredentials{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return NewWithClient(awss3.New(opts), cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *awss3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Put uploads the blob with If-None-Match: *, so the bucket itself refuses
// to overwrite an existing object.
func (s *Store) Put(ctx context.Context, data []byte, hint audio.Hint) (audio.Locator, error) {
	if err := audio.CheckPut(data); err != nil {
		return "", err
	}

	loc := audio.NewLocator(scheme, hint.MIMEType)
	name, err := audio.ParseFor(loc, scheme)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(audio.MIMETypeFor(path.Ext(name))),
		IfNoneMatch:   aws.String("*"),
	})
	if isPreconditionFailed(err) {
		return "", wrenerr.New(wrenerr.CodeAudioPutConflict, "audio blob already exists", wrenerr.Field("locator", string(loc)))
	}
	if err != nil {
		return "", wrenerr.Wrapf(err, wrenerr.CodeAudioStoreFailure, "uploading audio object %s", name)
	}
	return loc, nil
}

func (s *Store) Get(ctx context.Context, loc audio.Locator) (*audio.Blob, error) {
	name, err := audio.ParseFor(loc, scheme)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if isNotFound(err) {
		return nil, audio.NotFound(loc)
	}
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeAudioStoreFailure, "downloading audio object %s", name)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeAudioStoreFailure, "reading audio object %s", name)
	}

	mimeType := audio.MIMETypeFor(path.Ext(name))
	if out.ContentType != nil && *out.ContentType != "" {
		mimeType = *out.ContentType
	}
	return &audio.Blob{Data: data, MIMEType: mimeType}, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}
