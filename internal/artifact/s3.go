// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package artifact implements artifact transfer backends the pipeline
// Runner falls back to when an artifact's from/to names a remote URI
// rather than a platform-local path. The only scheme implemented today
// is s3://.
package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Transfer moves a single artifact across the boundary between the local
// filesystem and a remote object store. Upload and Download both take
// plain local filesystem paths; the remote side is addressed by a
// scheme-qualified URI (s3://bucket/key).
type Transfer interface {
	Upload(ctx context.Context, localPath, remoteURI string) error
	Download(ctx context.Context, remoteURI, localPath string) error
}

// S3 implements Transfer against an S3-compatible object store, resolving
// credentials and region from the standard AWS SDK provider chain.
type S3 struct {
	client *s3.Client
}

// NewS3 builds an S3 transfer using the default AWS credential and region
// resolution chain (environment, shared config, EC2/ECS instance role).
// region, if set, overrides whatever the chain would otherwise resolve.
func NewS3(ctx context.Context, region string) (*S3, error) {
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	awsCfg, err := config.LoadDefaultConfig(loadCtx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}

	return &S3{client: s3.NewFromConfig(awsCfg)}, nil
}

// ParseURI splits an s3://bucket/key URI into its bucket and key parts.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3:// URI: %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 URI must be s3://bucket/key, got %q", uri)
	}
	return bucket, key, nil
}

// Upload puts the local file at localPath to the bucket/key named by
// remoteURI.
func (t *S3) Upload(ctx context.Context, localPath, remoteURI string) error {
	bucket, key, err := ParseURI(remoteURI)
	if err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Download fetches the object named by remoteURI and writes it to
// localPath, creating parent directories as needed.
func (t *S3) Download(ctx context.Context, remoteURI, localPath string) error {
	bucket, key, err := ParseURI(remoteURI)
	if err != nil {
		return err
	}

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	if dir := parentDir(localPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("write %s: %w", localPath, err)
	}
	return nil
}

func parentDir(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return ""
	}
	return path[:i]
}
