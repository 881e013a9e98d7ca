// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package publish uploads produced distributions to S3-compatible storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/goplus/dylibpack/internal/env"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/qiniu/x/log"
)

// ErrDisabled is returned when no storage endpoint is configured.
var ErrDisabled = errors.New("publishing disabled: ARTIFACT_S3_ENDPOINT is not set")

// Config locates the bucket.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ConfigFromEnv reads the ARTIFACT_S3_* variables.
func ConfigFromEnv(lookup env.Lookup) Config {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	useSSL := true
	if raw := get("ARTIFACT_S3_USE_SSL"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			useSSL = v
		}
	}
	return Config{
		Endpoint:  get("ARTIFACT_S3_ENDPOINT"),
		Region:    firstNonEmpty(get("ARTIFACT_S3_REGION"), "us-east-1"),
		AccessKey: get("ARTIFACT_S3_ACCESS_KEY"),
		SecretKey: get("ARTIFACT_S3_SECRET_KEY"),
		Bucket:    firstNonEmpty(get("ARTIFACT_S3_BUCKET"), "dylibpack-artifacts"),
		UseSSL:    useSSL,
	}
}

// objectStore is the part of *minio.Client the uploader needs.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader puts files under <name>/<version>/ in a bucket.
type Uploader struct {
	client objectStore
	bucket string
	region string

	initOnce sync.Once
	initErr  error
}

// New creates an Uploader from cfg.
func New(cfg Config) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, ErrDisabled
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &Uploader{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	u.initOnce.Do(func() {
		exists, err := u.client.BucketExists(ctx, u.bucket)
		if err != nil {
			u.initErr = err
			return
		}
		if exists {
			return
		}
		u.initErr = u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region})
	})
	return u.initErr
}

// Upload stores the file at path and returns its object key.
func (u *Uploader) Upload(ctx context.Context, file, name, version string) (string, error) {
	if err := u.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	key := ObjectKey(name, version, file)
	log.Infof("uploading %s to s3://%s/%s", file, u.bucket, key)
	_, err := u.client.FPutObject(ctx, u.bucket, key, file, minio.PutObjectOptions{
		ContentType: contentType(file),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", file, err)
	}
	return key, nil
}

// ObjectKey is where file is stored for name at version.
func ObjectKey(name, version, file string) string {
	return path.Join(name, version, filepath.Base(file))
}

func contentType(file string) string {
	switch {
	case strings.HasSuffix(file, ".tar.gz"):
		return "application/gzip"
	case strings.HasSuffix(file, ".json"):
		return "application/json"
	case strings.HasSuffix(file, ".zip"):
		return "application/zip"
	}
	return "application/octet-stream"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
