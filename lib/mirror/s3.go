// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/secret"
)

// DigestMetadataKey is the user metadata entry holding an object's hex
// SHA-256. S3 exposes it as x-amz-meta-quartermaster-digest.
const DigestMetadataKey = "quartermaster-digest"

// S3API is the subset of the S3 client the target uses.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Target mirrors into a bucket under an optional key prefix.
type S3Target struct {
	name   string
	bucket string
	prefix string
	client S3API
}

// NewS3Target builds a client from the default AWS configuration chain.
// Static credentials replace the chain when AccessKeyID is set.
// Endpoint and PathStyle serve S3-compatible stores such as MinIO.
func NewS3Target(ctx context.Context, settings config.MirrorTarget, secretKey *secret.Buffer) (*S3Target, error) {
	if settings.Bucket == "" {
		return nil, fmt.Errorf("mirror %s: bucket is required", settings.Name)
	}
	var loadOptions []func(*awsconfig.LoadOptions) error
	if settings.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(settings.Region))
	}
	if settings.AccessKeyID != "" {
		if secretKey == nil {
			return nil, fmt.Errorf("mirror %s: access_key_id requires secret_access_key", settings.Name)
		}
		provider := credentials.NewStaticCredentialsProvider(settings.AccessKeyID, secretKey.String(), "")
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(provider))
	}
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("mirror %s: loading AWS configuration: %w", settings.Name, err)
	}
	client := s3.NewFromConfig(awsConfig, func(options *s3.Options) {
		if settings.Endpoint != "" {
			options.BaseEndpoint = aws.String(settings.Endpoint)
		}
		options.UsePathStyle = settings.PathStyle
	})
	return NewS3TargetWithClient(settings.Name, settings.Bucket, settings.Prefix, client), nil
}

// NewS3TargetWithClient wraps an existing client.
func NewS3TargetWithClient(name, bucket, prefix string, client S3API) *S3Target {
	return &S3Target{name: name, bucket: bucket, prefix: strings.Trim(prefix, "/"), client: client}
}

func (t *S3Target) Name() string { return t.name }

func (t *S3Target) key(rel string) (string, string, error) {
	cleaned, err := cleanRel(rel)
	if err != nil {
		return "", "", err
	}
	if t.prefix == "" {
		return cleaned, cleaned, nil
	}
	return cleaned, path.Join(t.prefix, cleaned), nil
}

// isNotFound matches HeadObject's bare 404 and GetObject's NoSuchKey.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey":
		return true
	}
	return false
}

func (t *S3Target) Stat(ctx context.Context, rel string) (Object, error) {
	cleaned, key, err := t.key(rel)
	if err != nil {
		return Object{}, err
	}
	output, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(t.bucket), Key: aws.String(key)})
	if isNotFound(err) {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}
	if err != nil {
		return Object{}, fmt.Errorf("head s3://%s/%s: %w", t.bucket, key, err)
	}
	return Object{
		Path:   cleaned,
		Size:   aws.ToInt64(output.ContentLength),
		Digest: output.Metadata[DigestMetadataKey],
	}, nil
}

func (t *S3Target) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	cleaned, key, err := t.key(rel)
	if err != nil {
		return nil, err
	}
	output, err := t.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(t.bucket), Key: aws.String(key)})
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", t.bucket, key, err)
	}
	return output.Body, nil
}

// Put uploads r in one request. The SDK signs the payload, so r should
// be seekable; files and byte readers are.
func (t *S3Target) Put(ctx context.Context, object Object, r io.Reader) error {
	_, key, err := t.key(object.Path)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if object.Size >= 0 {
		input.ContentLength = aws.Int64(object.Size)
	}
	if object.Digest != "" {
		input.Metadata = map[string]string{DigestMetadataKey: object.Digest}
	}
	if _, err := t.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", t.bucket, key, err)
	}
	return nil
}

func (t *S3Target) Remove(ctx context.Context, rel string) error {
	_, key, err := t.key(rel)
	if err != nil {
		return err
	}
	_, err = t.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(t.bucket), Key: aws.String(key)})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete s3://%s/%s: %w", t.bucket, key, err)
	}
	return nil
}

// List pages through the keys under prefix. Digests are not listed;
// Stat returns them.
func (t *S3Target) List(ctx context.Context, prefix string) ([]Object, error) {
	keyPrefix := t.prefix
	if prefix != "" {
		_, key, err := t.key(prefix)
		if err != nil {
			return nil, err
		}
		keyPrefix = key
	}
	if keyPrefix != "" {
		keyPrefix += "/"
	}
	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(t.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(t.bucket),
		Prefix: aws.String(keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return objects, fmt.Errorf("listing s3://%s/%s: %w", t.bucket, keyPrefix, err)
		}
		for _, item := range page.Contents {
			key := aws.ToString(item.Key)
			rel := key
			if t.prefix != "" {
				rel = strings.TrimPrefix(key, t.prefix+"/")
			}
			objects = append(objects, Object{Path: rel, Size: aws.ToInt64(item.Size)})
		}
	}
	return objects, nil
}

func (t *S3Target) Close() error { return nil }
