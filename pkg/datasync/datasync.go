// Package datasync moves pipeline data through S3: it seeds the pipeline
// bucket from a source dataset prefix and pushes local scripts up for the
// processing and evaluation jobs to run.
package datasync

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

// NewClient builds an S3 client from the ambient AWS configuration.
func NewClient(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "unable to load AWS configuration")
	}

	return s3.NewFromConfig(cfg), nil
}

// API is the S3 surface the copier needs.
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Copier copies a dataset prefix between buckets server-side.
type Copier struct {
	S3 API

	// Concurrency bounds the in-flight copies. Defaults to 8.
	Concurrency int

	Log logrus.FieldLogger
}

// CopyStats reports what a CopyPrefix call did.
type CopyStats struct {
	Objects int64
	Skipped int64
	Bytes   int64
}

func isNotFound(err error) bool {
	var aerr smithy.APIError

	return errors.As(err, &aerr) && (aerr.ErrorCode() == "NotFound" || aerr.ErrorCode() == "NoSuchKey")
}

// CopyPrefix copies every object under srcPrefix into dstBucket under
// dstPrefix. Objects already present with the same size are skipped, so
// re-running is cheap. The first failing object aborts the copy.
func (c *Copier) CopyPrefix(ctx context.Context, srcBucket, srcPrefix, dstBucket, dstPrefix string) (CopyStats, error) {
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var (
		stats CopyStats
		mu    sync.Mutex
	)

	add := func(fn func(*CopyStats)) {
		mu.Lock()
		defer mu.Unlock()
		fn(&stats)
	}

	grp, gCtx := errgroup.WithContext(ctx)
	grp.SetLimit(concurrency)

	paginator := s3.NewListObjectsV2Paginator(c.S3, &s3.ListObjectsV2Input{
		Bucket: aws.String(srcBucket),
		Prefix: aws.String(srcPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return stats, errors.Wrapf(err, "unable to list s3://%s/%s", srcBucket, srcPrefix)
		}

		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			size := aws.ToInt64(object.Size)
			dstKey := dstPrefix + strings.TrimPrefix(key, srcPrefix)

			grp.Go(func() error {
				head, err := c.S3.HeadObject(gCtx, &s3.HeadObjectInput{
					Bucket: aws.String(dstBucket),
					Key:    aws.String(dstKey),
				})

				switch {
				case err == nil && aws.ToInt64(head.ContentLength) == size:
					add(func(s *CopyStats) { s.Skipped++ })

					return nil
				case err != nil && !isNotFound(err):
					return errors.Wrapf(err, "unable to check s3://%s/%s", dstBucket, dstKey)
				}

				_, err = c.S3.CopyObject(gCtx, &s3.CopyObjectInput{
					Bucket:     aws.String(dstBucket),
					Key:        aws.String(dstKey),
					CopySource: aws.String(url.PathEscape(srcBucket + "/" + key)),
				})
				if err != nil {
					return errors.Wrapf(err, "unable to copy s3://%s/%s", srcBucket, key)
				}

				add(func(s *CopyStats) {
					s.Objects++
					s.Bytes += size
				})

				c.Log.WithField("key", dstKey).WithField("size", humanize.Bytes(uint64(size))).Debug("object copied")

				return nil
			})
		}
	}

	if err := grp.Wait(); err != nil {
		return stats, err
	}

	c.Log.WithFields(logrus.Fields{
		"objects": stats.Objects,
		"skipped": stats.Skipped,
		"bytes":   humanize.Bytes(uint64(stats.Bytes)),
	}).Info("dataset copy finished")

	return stats, nil
}
