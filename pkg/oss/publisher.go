// Package oss publishes finished videos to an Aliyun OSS bucket.
package oss

import (
	"context"
	"fmt"
	"os"
	"path"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"strings"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
	"go.uber.org/zap"
)

type objectPutter interface {
	PutObjectFromFile(ctx context.Context, request *oss.PutObjectRequest, filePath string, optFns ...func(*oss.Options)) (*oss.PutObjectResult, error)
}

// Publisher implements types.Publisher
type Publisher struct {
	client   objectPutter
	Bucket   string
	Region   string
	Endpoint string
}

func NewPublisher(region, endpoint, bucket, accessKeyId, accessKeySecret string) *Publisher {
	cfg := oss.LoadDefaultConfig().
		WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyId, accessKeySecret)).
		WithRegion(region)
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint)
	}
	return &Publisher{
		client:   oss.NewClient(cfg),
		Bucket:   bucket,
		Region:   region,
		Endpoint: endpoint,
	}
}

// ObjectKey joins the key parts with forward slashes whatever the OS.
func ObjectKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return path.Join(cleaned...)
}

// Publish uploads localPath under key and returns the oss:// location.
func (p *Publisher) Publish(ctx context.Context, localPath, key string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeFileNotFound, "文件不存在 File not found", localPath, err)
	}
	key = ObjectKey(key)
	if key == "" {
		return "", apperrors.Newf(apperrors.CodeInvalidParams, "参数错误 Invalid parameters", "empty object key for %s", localPath)
	}

	_, err := p.client.PutObjectFromFile(ctx, &oss.PutObjectRequest{
		Bucket: oss.Ptr(p.Bucket),
		Key:    oss.Ptr(key),
	}, localPath)
	if err != nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeServiceFailed, "上传 OSS 失败 OSS upload failed", key, err)
	}

	location := fmt.Sprintf("oss://%s/%s", p.Bucket, key)
	log.GetLogger().Info("成品已上传 Artifact published", zap.String("local", localPath), zap.String("location", location))
	return location, nil
}
