// Package s3 提供对象存储网关：基于 minio-go 的写入、读取、预签名下载、删除、存在性与元数据查询.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yeisme/cloudvault/pkg/configs"
	nlog "github.com/yeisme/cloudvault/pkg/log"
)

// ErrObjectNotFound 对象不存在.
var ErrObjectNotFound = errors.New("object not found")

// PutResult 写入结果.
type PutResult struct {
	Key      string `json:"key"`
	Location string `json:"location"`
	ETag     string `json:"etag"`
}

// ObjectInfo 对象元数据.
type ObjectInfo struct {
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	ETag        string `json:"etag"`
}

// Gateway 对象存储能力接口，Client 与测试用的内存实现都满足该接口.
type Gateway interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, meta map[string]string) (PutResult, error)
	Get(ctx context.Context, key string, maxBytes int64) ([]byte, error)
	SignedDownloadURL(ctx context.Context, key string, ttl time.Duration, fileName string) (string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Head(ctx context.Context, key string) (ObjectInfo, error)
}

// Client 包装 MinIO 客户端，所有对象位于单一 bucket.
type Client struct {
	*minio.Client
	bucket string
	region string
}

var _ Gateway = (*Client)(nil)

// New 初始化 MinIO 客户端，若 bucket 不存在且允许则创建.
func New(ctx context.Context, cfg configs.S3Config) (*Client, error) {
	endpoint := cfg.Endpoint
	// 允许用户传完整 schema endpoint（http:// 或 https://）
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			cfg.UseSSL = true
		}
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	cli.SetAppInfo("cloudvault", configs.AppVersion)

	c := &Client{Client: cli, bucket: cfg.BucketName, region: cfg.Region}

	if cfg.AutoCreateBucket {
		if err := c.ensureBucket(ctx); err != nil {
			return nil, err
		}
	}

	nlog.Logger().Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.BucketName).Msg("s3 connected")

	return c, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}

	if exists {
		return nil
	}

	if err := c.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}

	nlog.Logger().Info().Str("bucket", c.bucket).Msg("bucket created")

	return nil
}

// Bucket 返回当前使用的 bucket 名称.
func (c *Client) Bucket() string {
	return c.bucket
}

// Put 写入对象.
func (c *Client) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, meta map[string]string) (PutResult, error) {
	info, err := c.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("put object %s: %w", key, err)
	}

	location := info.Location
	if location == "" {
		location = fmt.Sprintf("%s/%s/%s", c.EndpointURL().String(), c.bucket, key)
	}

	return PutResult{Key: key, Location: location, ETag: info.ETag}, nil
}

// Get 读取对象内容，maxBytes > 0 时最多读取 maxBytes 字节.
func (c *Client) Get(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	obj, err := c.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err, key)
	}
	defer obj.Close()

	var reader io.Reader = obj
	if maxBytes > 0 {
		reader = io.LimitReader(obj, maxBytes)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, translate(err, key)
	}

	return data, nil
}

// SignedDownloadURL 生成预签名下载链接，fileName 非空时设置 Content-Disposition.
func (c *Client) SignedDownloadURL(ctx context.Context, key string, ttl time.Duration, fileName string) (string, error) {
	params := url.Values{}
	if fileName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	}

	u, err := c.PresignedGetObject(ctx, c.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}

	return u.String(), nil
}

// Delete 删除对象，对象不存在视为成功.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if errors.Is(translate(err, key), ErrObjectNotFound) {
			return nil
		}

		return fmt.Errorf("delete object %s: %w", key, err)
	}

	return nil
}

// Exists 判断对象是否存在.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Head(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

// Head 查询对象元数据.
func (c *Client) Head(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := c.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translate(err, key)
	}

	return ObjectInfo{Size: info.Size, ContentType: info.ContentType, ETag: info.ETag}, nil
}

// HealthCheck 通过检查 bucket 验证连接.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.BucketExists(ctx, c.bucket)

	return err
}

// Close 关闭 S3 客户端连接（无实际操作，接口兼容）.
func (c *Client) Close() error {
	return nil
}

// translate 把 minio 的 404 类错误统一为 ErrObjectNotFound.
func translate(err error, key string) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	return fmt.Errorf("object %s: %w", key, err)
}
