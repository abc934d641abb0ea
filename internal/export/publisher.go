package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultLinkExpiry is how long a published export link stays valid.
const DefaultLinkExpiry = 24 * time.Hour

// objectStore is the subset of *minio.Client the publisher needs.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// PublisherConfig configures the S3-compatible export bucket.
type PublisherConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Published describes an uploaded export.
type Published struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Publisher uploads exports to an S3-compatible bucket and hands out
// presigned download links.
type Publisher struct {
	client objectStore
	bucket string
	expiry time.Duration
	now    func() time.Time
}

// NewPublisher connects to the object store and makes sure the bucket exists.
func NewPublisher(ctx context.Context, cfg PublisherConfig) (*Publisher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return newPublisher(ctx, client, cfg.Bucket)
}

func newPublisher(ctx context.Context, client objectStore, bucket string) (*Publisher, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		log.Printf("export: created bucket %s", bucket)
	}
	return &Publisher{client: client, bucket: bucket, expiry: DefaultLinkExpiry, now: time.Now}, nil
}

// objectKey places exports under notes/<id>/ with a sortable timestamp prefix.
func (p *Publisher) objectKey(noteID, filename string) string {
	return fmt.Sprintf("notes/%s/%s-%s", noteID, p.now().UTC().Format("20060102T150405Z"), filename)
}

// Publish uploads an export result and returns a presigned link to it.
func (p *Publisher) Publish(ctx context.Context, noteID string, res *Result) (*Published, error) {
	if p == nil {
		return nil, ErrPublishingDisabled
	}
	key := p.objectKey(noteID, res.Filename)
	info, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(res.Data), int64(len(res.Data)), minio.PutObjectOptions{
		ContentType: res.MimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload export: %w", err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	link, err := p.client.PresignedGetObject(ctx, p.bucket, key, p.expiry, params)
	if err != nil {
		return nil, fmt.Errorf("presign export: %w", err)
	}

	return &Published{
		Bucket:    p.bucket,
		Key:       key,
		Size:      info.Size,
		URL:       link.String(),
		ExpiresAt: p.now().Add(p.expiry),
	}, nil
}
