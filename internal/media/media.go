// Package media issues pre-signed S3 PUT URLs so clients upload media
// directly to object storage and the chat server only ever carries URLs.
package media

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/chatplatform/relay/internal/config"
	"github.com/chatplatform/relay/internal/errs"
)

// Upload is what a client needs to store one object: where to PUT it and the
// URL to reference it by afterwards.
type Upload struct {
	UploadURL string `json:"uploadUrl"`
	MediaURL  string `json:"mediaUrl"`
	Key       string `json:"key"`
}

// Signer pre-signs uploads against one bucket.
type Signer struct {
	cfg     config.MediaConfig
	presign *s3.PresignClient
}

// NewSigner builds a signer from the ambient AWS credential chain. An
// endpoint override points the client at S3-compatible storage.
func NewSigner(ctx context.Context, cfg config.MediaConfig) (*Signer, error) {
	if cfg.Bucket == "" {
		return nil, errs.E(errs.Validation, "media bucket is not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Signer{cfg: cfg, presign: s3.NewPresignClient(client)}, nil
}

// PresignUpload returns a PUT URL for a fresh object key derived from the
// uploader and file name. The URL expires after the configured TTL.
func (s *Signer) PresignUpload(ctx context.Context, userID, fileName, contentType string) (*Upload, error) {
	key := objectKey(userID, fileName)

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.cfg.PresignTTL()))
	if err != nil {
		return nil, fmt.Errorf("presign put %s: %w", key, err)
	}

	return &Upload{
		UploadURL: req.URL,
		MediaURL:  s.publicURL(key),
		Key:       key,
	}, nil
}

func (s *Signer) publicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// objectKey namespaces objects per uploader and randomizes the name so
// clients cannot overwrite each other's uploads.
func objectKey(userID, fileName string) string {
	ext := path.Ext(fileName)
	return fmt.Sprintf("media/%s/%s%s", userID, uuid.Must(uuid.NewV7()).String(), ext)
}
