package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
)

type OSSStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	AccessKeySecret string
	PublicBaseURL   string
}

// OSSStore uploads to an Alibaba Cloud OSS bucket.
type OSSStore struct {
	client        *oss.Client
	bucket        string
	publicBaseURL string
}

func NewOSSStore(cfg OSSStoreConfig) (*OSSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: oss bucket is required")
	}
	provider := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret)
	ossConfig := oss.LoadDefaultConfig().
		WithCredentialsProvider(provider).
		WithEndpoint(cfg.Endpoint).
		WithRegion(cfg.Region)

	return &OSSStore{
		client:        oss.NewClient(ossConfig),
		bucket:        cfg.Bucket,
		publicBaseURL: cfg.PublicBaseURL,
	}, nil
}

func (s *OSSStore) Put(ctx context.Context, object Object) (string, error) {
	request := &oss.PutObjectRequest{
		Bucket: oss.Ptr(s.bucket),
		Key:    oss.Ptr(object.Key),
		Body:   object.Body,
	}
	if object.ContentType != "" {
		request.ContentType = oss.Ptr(object.ContentType)
	}
	if object.Size > 0 {
		request.ContentLength = oss.Ptr(object.Size)
	}
	if _, err := s.client.PutObject(ctx, request); err != nil {
		return "", fmt.Errorf("storage: oss put %s: %w", object.Key, err)
	}
	return publicURL(s.publicBaseURL, object.Key), nil
}
