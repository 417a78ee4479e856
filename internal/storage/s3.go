// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package storage provides an S3-compatible object storage client for
// listing photos. Clients upload straight to the bucket through presigned
// PUT URLs; the API only stores the object key and builds public URLs from
// it. Path-style addressing is used so MinIO and CEPH endpoints work.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"kavmarket/internal/slug"
)

// UploadTTL is how long a presigned upload URL stays valid.
const UploadTTL = 5 * time.Minute

// keyPrefix is where listing photos live inside the bucket.
const keyPrefix = "listings/"

// ErrUnsupportedType is returned for uploads that are not an allowed image type.
var ErrUnsupportedType = errors.New("unsupported photo content type")

// allowedTypes maps accepted content types to the file extension used in keys.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// Upload is a presigned PUT for one photo.
type Upload struct {
	UploadURL string    `json:"uploadUrl"`
	S3Key     string    `json:"s3Key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Client wraps an S3 client for the public photo bucket.
type Client struct {
	s3        *s3.Client
	presigner *s3.PresignClient
	bucket    string
	endpoint  string
	publicURL string // optional CDN/direct URL for public files
}

// New creates an S3 storage client with path-style addressing. Returns
// (nil, nil) if endpoint or credentials are empty, allowing the app to
// start without storage.
func New(endpoint, region, accessKey, secretKey, bucket, publicURL string) (*Client, error) {
	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, nil
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	endpoint = strings.TrimRight(endpoint, "/")

	s3Client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		UsePathStyle: true,
	})

	return &Client{
		s3:        s3Client,
		presigner: s3.NewPresignClient(s3Client),
		bucket:    bucket,
		endpoint:  endpoint,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// PresignUpload returns a presigned PUT URL for a new photo object. The
// key embeds a random UUID so two uploads never collide.
func (c *Client) PresignUpload(ctx context.Context, filename, contentType string) (*Upload, error) {
	ext, ok := allowedTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}

	key := ObjectKey(uuid.New(), filename, ext)
	req, err := c.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(UploadTTL))
	if err != nil {
		return nil, fmt.Errorf("s3 presign %s/%s: %w", c.bucket, key, err)
	}

	return &Upload{
		UploadURL: req.URL,
		S3Key:     key,
		ExpiresAt: time.Now().Add(UploadTTL).UTC(),
	}, nil
}

// Delete removes a photo object.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// PhotoURL returns the public URL for a photo key.
// Uses the configured public URL if set, otherwise builds a path-style URL.
func (c *Client) PhotoURL(key string) string {
	if c.publicURL != "" {
		return c.publicURL + "/" + key
	}
	return c.endpoint + "/" + c.bucket + "/" + key
}

// Bucket returns the name of the photo bucket.
func (c *Client) Bucket() string {
	return c.bucket
}

// ObjectKey builds "listings/<id>-<name><ext>" from a client file name.
// The name is slugged so the key is safe in a URL path.
func ObjectKey(id uuid.UUID, filename, ext string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	name := slug.Generate(base)
	if name == "" {
		name = "photo"
	}
	if r := []rune(name); len(r) > 48 {
		name = strings.TrimRight(string(r[:48]), "-")
	}
	return keyPrefix + id.String() + "-" + name + ext
}
