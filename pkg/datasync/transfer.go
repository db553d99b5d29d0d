package datasync

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Transfer moves individual files between the local machine and S3 using
// the SDK transfer manager.
type Transfer struct {
	uploader   *manager.Uploader
	downloader *manager.Downloader
	log        logrus.FieldLogger
}

// NewTransfer creates a Transfer on top of an S3 client.
func NewTransfer(client *s3.Client, log logrus.FieldLogger) *Transfer {
	return &Transfer{
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		log:        log,
	}
}

// UploadFile pushes a local file to s3://bucket/key.
func (t *Transfer) UploadFile(ctx context.Context, path, bucket, key string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", path)
	}
	defer file.Close()

	_, err = t.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return errors.Wrapf(err, "unable to upload %s to s3://%s/%s", path, bucket, key)
	}

	t.log.WithField("key", key).Info("file uploaded")

	return nil
}

// UploadScripts pushes each named local file under the given key prefix and
// returns the resulting S3 URIs keyed by base name.
func (t *Transfer) UploadScripts(ctx context.Context, bucket, prefix string, paths ...string) (map[string]string, error) {
	uris := make(map[string]string, len(paths))

	for _, path := range paths {
		base := filepath.Base(path)
		key := prefix + base

		err := t.UploadFile(ctx, path, bucket, key)
		if err != nil {
			return nil, err
		}

		uris[base] = "s3://" + bucket + "/" + key
	}

	return uris, nil
}

// Download fetches s3://bucket/key into memory.
func (t *Transfer) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)

	_, err := t.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to download s3://%s/%s", bucket, key)
	}

	return buf.Bytes(), nil
}
