package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

// S3Config ...
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the S3 endpoint, for S3 compatible stores. Enables path style addressing.
	Endpoint string
	// PartSize is the size of the ranges downloaded in parallel. Defaults to 16 MiB.
	PartSize int64
	// Concurrency is the number of parallel range downloads. Defaults to 8.
	Concurrency int
}

type s3Downloader interface {
	download(ctx context.Context, bucket, key, dest string) error
}

type s3DownloadService struct {
	config S3Config
	logger log.Logger

	retries   int
	retryWait time.Duration

	once      sync.Once
	client    *s3.Client
	clientErr error
}

func newS3Downloader(config Config, logger log.Logger) *s3DownloadService {
	return &s3DownloadService{
		config:    config.S3,
		logger:    logger,
		retries:   config.DownloadRetries,
		retryWait: config.DownloadRetryWait,
	}
}

// s3Client builds the client on first use so that runs without S3 sources never load AWS config.
func (service *s3DownloadService) s3Client(ctx context.Context) (*s3.Client, error) {
	service.once.Do(func() {
		cfg, err := loadAWSConfig(ctx, service.config, service.logger)
		if err != nil {
			service.clientErr = fmt.Errorf("load aws config: %w", err)
			return
		}
		service.client = s3.NewFromConfig(*cfg, func(o *s3.Options) {
			if service.config.Endpoint != "" {
				o.BaseEndpoint = aws.String(service.config.Endpoint)
				o.UsePathStyle = true
			}
		})
	})
	return service.client, service.clientErr
}

func (service *s3DownloadService) download(ctx context.Context, bucket, key, dest string) error {
	if bucket == "" || key == "" {
		return fmt.Errorf("s3 location needs both bucket and key")
	}

	client, err := service.s3Client(ctx)
	if err != nil {
		return err
	}

	return retry.Times(uint(service.retries)).Wait(service.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			service.logger.Warnf("Retrying download of s3://%s/%s (attempt %d)", bucket, key, attempt+1)
		}

		if err := service.headObject(ctx, client, bucket, key); err != nil {
			return err, errors.Is(err, ErrNotFound)
		}

		if err := service.getObject(ctx, client, bucket, key, dest); err != nil {
			return err, false
		}
		return nil, true
	})
}

func (service *s3DownloadService) headObject(ctx context.Context, client *s3.Client, bucket, key string) error {
	_, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) {
			switch apiError.(type) {
			case *types.NotFound, *types.NoSuchKey:
				return fmt.Errorf("%w: s3://%s/%s", ErrNotFound, bucket, key)
			default:
				return fmt.Errorf("aws api error: %w", err)
			}
		}
		return fmt.Errorf("generic aws error: %w", err)
	}
	return nil
}

func (service *s3DownloadService) getObject(ctx context.Context, client *s3.Client, bucket, key, dest string) error {
	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		if service.config.PartSize > 0 {
			d.PartSize = service.config.PartSize
		} else {
			d.PartSize = 16 * 1024 * 1024
		}
		if service.config.Concurrency > 0 {
			d.Concurrency = service.config.Concurrency
		} else {
			d.Concurrency = 8
		}
	})

	n, err := downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download object: %w", err)
	}
	service.logger.Debugf("Downloaded %d bytes from s3://%s/%s", n, bucket, key)

	return nil
}

func loadAWSConfig(ctx context.Context, s3Config S3Config, logger log.Logger) (*aws.Config, error) {
	if s3Config.Region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(s3Config.Region),
	}

	if s3Config.AccessKeyID != "" && s3Config.SecretAccessKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s3Config.AccessKeyID, s3Config.SecretAccessKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
