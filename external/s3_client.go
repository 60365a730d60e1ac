package external

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/bitrollup/da-syncer/config"
)

var (
	ErrObjectNotFound = errors.New("the object is not found in the archive bucket")
)

// S3Client stores and fetches archived batch objects.
type S3Client struct {
	svc    *s3.S3
	bucket string
}

func NewS3Client(cfg *config.ArchiveConfig) (*S3Client, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		// S3-compatible stores want path-style addressing.
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return &S3Client{
		svc:    s3.New(sess),
		bucket: cfg.BucketName,
	}, nil
}

func (c *S3Client) UploadObject(ctx context.Context, key string, body io.ReadSeeker) error {
	_, err := c.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	return err
}

func (c *S3Client) UploadObjectFromFile(ctx context.Context, key, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.UploadObject(ctx, key, f)
}

// GetObject returns the object body. Callers own closing it.
func (c *S3Client) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := c.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return out.Body, nil
}

// GetObjectBytes is GetObject drained into memory.
func (c *S3Client) GetObjectBytes(ctx context.Context, key string) ([]byte, error) {
	body, err := c.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// HeadObject reports the size of the object at key.
func (c *S3Client) HeadObject(ctx context.Context, key string) (int64, error) {
	out, err := c.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, ErrObjectNotFound
		}
		return 0, err
	}
	return aws.Int64Value(out.ContentLength), nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	// HeadObject failures surface as a bare "NotFound" code instead of
	// s3.ErrCodeNoSuchKey.
	return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
}
