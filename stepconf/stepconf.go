// Package stepconf loads the configuration of an upload run from environment variables.
package stepconf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-diskupload/source"
	"github.com/bitrise-io/go-diskupload/upload"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Environment variables read by Load.
const (
	SourceKey         = "DISKUPLOAD_SOURCE"
	ContainerKey      = "DISKUPLOAD_CONTAINER"
	BlobKey           = "DISKUPLOAD_BLOB"
	WorkersKey        = "DISKUPLOAD_WORKERS"
	ChunkSizeKey      = "DISKUPLOAD_CHUNK_SIZE"
	MaxRetriesKey     = "DISKUPLOAD_MAX_RETRIES"
	RetryWaitKey      = "DISKUPLOAD_RETRY_WAIT"
	TimeoutKey        = "DISKUPLOAD_TIMEOUT"
	SkipZeroChunksKey = "DISKUPLOAD_SKIP_ZERO_CHUNKS"
	StagingDirKey     = "DISKUPLOAD_STAGING_DIR"
	VerboseKey        = "DISKUPLOAD_VERBOSE"

	AccountNameKey = "AZURE_STORAGE_ACCOUNT"
	AccountKeyKey  = "AZURE_STORAGE_KEY"
	ServiceURLKey  = "AZURE_STORAGE_SERVICE_URL"

	AWSRegionKey          = "AWS_REGION"
	AWSAccessKeyIDKey     = "AWS_ACCESS_KEY_ID"
	AWSSecretAccessKeyKey = "AWS_SECRET_ACCESS_KEY"
	S3EndpointKey         = "DISKUPLOAD_S3_ENDPOINT"
)

// Secret is a string that is never printed.
type Secret string

// String ...
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", 5)
}

// Config describes one upload run.
type Config struct {
	// Sources are image locations or local glob patterns.
	Sources   []string
	Container string
	// BlobName is the target blob when a single image is uploaded.
	// Defaults to the base name of the image.
	BlobName    string
	AccountName string
	AccountKey  Secret
	// ServiceURL may carry a SAS token, so it is kept secret as well.
	ServiceURL Secret
	Verbose    bool

	Upload upload.Config
	Source source.Config
}

// Load reads the config from envRepo, falling back to the defaults of the upload and source packages.
func Load(envRepo env.Repository) (Config, error) {
	config := Config{
		Sources:     splitList(envRepo.Get(SourceKey)),
		Container:   strings.TrimSpace(envRepo.Get(ContainerKey)),
		BlobName:    strings.TrimSpace(envRepo.Get(BlobKey)),
		AccountName: strings.TrimSpace(envRepo.Get(AccountNameKey)),
		AccountKey:  Secret(envRepo.Get(AccountKeyKey)),
		ServiceURL:  Secret(envRepo.Get(ServiceURLKey)),
		Upload:      upload.DefaultConfig(),
		Source:      source.DefaultConfig(),
	}

	if len(config.Sources) == 0 {
		return Config{}, fmt.Errorf("%s is not defined", SourceKey)
	}
	if config.Container == "" {
		return Config{}, fmt.Errorf("%s is not defined", ContainerKey)
	}
	if config.AccountName == "" && config.ServiceURL == "" {
		return Config{}, fmt.Errorf("either %s or %s must be defined", AccountNameKey, ServiceURLKey)
	}
	if config.BlobName != "" && len(config.Sources) > 1 {
		return Config{}, fmt.Errorf("%s can only be used with a single source", BlobKey)
	}

	var err error
	if config.Verbose, err = parseBool(envRepo, VerboseKey, false); err != nil {
		return Config{}, err
	}
	if config.Upload.Concurrency, err = parseInt(envRepo, WorkersKey, config.Upload.Concurrency); err != nil {
		return Config{}, err
	}
	if config.Upload.MaxRetryPerChunk, err = parseInt(envRepo, MaxRetriesKey, config.Upload.MaxRetryPerChunk); err != nil {
		return Config{}, err
	}
	if config.Upload.MaxChunkSize, err = parseSize(envRepo, ChunkSizeKey, config.Upload.MaxChunkSize); err != nil {
		return Config{}, err
	}
	if config.Upload.RetryWait, err = parseDuration(envRepo, RetryWaitKey, config.Upload.RetryWait); err != nil {
		return Config{}, err
	}
	if config.Upload.RemoteTimeout, err = parseDuration(envRepo, TimeoutKey, config.Upload.RemoteTimeout); err != nil {
		return Config{}, err
	}
	if config.Upload.SkipZeroChunks, err = parseBool(envRepo, SkipZeroChunksKey, config.Upload.SkipZeroChunks); err != nil {
		return Config{}, err
	}
	if err := config.Upload.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid upload config: %w", err)
	}

	config.Source.StagingDir = strings.TrimSpace(envRepo.Get(StagingDirKey))
	config.Source.S3 = source.S3Config{
		Region:          strings.TrimSpace(envRepo.Get(AWSRegionKey)),
		AccessKeyID:     envRepo.Get(AWSAccessKeyIDKey),
		SecretAccessKey: envRepo.Get(AWSSecretAccessKeyKey),
		Endpoint:        strings.TrimSpace(envRepo.Get(S3EndpointKey)),
	}

	return config, nil
}

// Print logs the config with secrets redacted.
func (c Config) Print(logger log.Logger) {
	logger.Infof("Configs:")
	logger.Printf("- Sources: %s", strings.Join(c.Sources, ", "))
	logger.Printf("- Container: %s", c.Container)
	if c.BlobName != "" {
		logger.Printf("- Blob: %s", c.BlobName)
	}
	if c.AccountName != "" {
		logger.Printf("- Account: %s", c.AccountName)
	}
	logger.Printf("- Account key: %s", c.AccountKey)
	logger.Printf("- Service URL: %s", c.ServiceURL)
	logger.Printf("- Workers: %d", c.Upload.Concurrency)
	logger.Printf("- Chunk size: %s", units.BytesSize(float64(c.Upload.MaxChunkSize)))
	logger.Printf("- Max retries per chunk: %d (wait %s)", c.Upload.MaxRetryPerChunk, c.Upload.RetryWait)
	logger.Printf("- Remote call timeout: %s", c.Upload.RemoteTimeout)
	logger.Printf("- Skip zero chunks: %t", c.Upload.SkipZeroChunks)
}

// splitList splits newline or pipe separated values.
func splitList(value string) []string {
	var items []string
	for _, line := range strings.Split(value, "\n") {
		for _, item := range strings.Split(line, "|") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}

func parseInt(envRepo env.Repository, key string, fallback int) (int, error) {
	value := strings.TrimSpace(envRepo.Get(key))
	if value == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, value)
	}
	return i, nil
}

func parseSize(envRepo env.Repository, key string, fallback int64) (int64, error) {
	value := strings.TrimSpace(envRepo.Get(key))
	if value == "" {
		return fallback, nil
	}
	size, err := units.RAMInBytes(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid size %q: %w", key, value, err)
	}
	return size, nil
}

func parseDuration(envRepo env.Repository, key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(envRepo.Get(key))
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}

func parseBool(envRepo env.Repository, key string, fallback bool) (bool, error) {
	value := strings.ToLower(strings.TrimSpace(envRepo.Get(key)))
	switch value {
	case "":
		return fallback, nil
	case "yes", "y", "true", "1":
		return true, nil
	case "no", "n", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%s: invalid boolean %q", key, value)
	}
}
