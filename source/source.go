// Package source resolves a disk image location into a local file that can be read at random offsets.
// Local images are used in place; remote and zstd compressed images are staged into a temporary directory.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
)

const (
	fileScheme  = "file://"
	zstdSuffix  = ".zst"
	stagePrefix = "diskupload-"
)

// ErrUnsupportedScheme is returned for locations with a scheme other than file, http(s) or s3.
var ErrUnsupportedScheme = errors.New("unsupported source scheme")

// ErrNotFound is returned when a remote image does not exist.
var ErrNotFound = errors.New("source image not found")

// Config ...
type Config struct {
	// StagingDir is the parent of the temporary staging directories. Defaults to os.TempDir().
	StagingDir string
	// DownloadRetries is the number of retries of a failed S3 download.
	DownloadRetries int
	// DownloadRetryWait is the delay between download retries.
	DownloadRetryWait time.Duration
	S3                S3Config
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		DownloadRetries:   3,
		DownloadRetryWait: 5 * time.Second,
	}
}

// Staged is a local, readable copy of a source image.
type Staged struct {
	Path    string
	Size    int64
	cleanup func() error
}

// Cleanup removes the staged copy. It never removes an image that was used in place.
func (s *Staged) Cleanup() error {
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup()
}

// Stager ...
type Stager struct {
	config       Config
	logger       log.Logger
	pathModifier pathutil.PathModifier
	http         httpDownloader
	s3           s3Downloader
}

// NewStager creates a Stager.
func NewStager(config Config, logger log.Logger) *Stager {
	return &Stager{
		config:       config,
		logger:       logger,
		pathModifier: pathutil.NewPathModifier(),
		http:         newHTTPDownloader(logger),
		s3:           newS3Downloader(config, logger),
	}
}

// Stage makes the image at location available as a local file.
func (s *Stager) Stage(ctx context.Context, location string) (*Staged, error) {
	if location == "" {
		return nil, fmt.Errorf("source location is empty")
	}

	switch {
	case strings.HasPrefix(location, "s3://"), strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return s.stageRemote(ctx, location)
	case strings.HasPrefix(location, fileScheme):
		return s.stageLocal(strings.TrimPrefix(location, fileScheme))
	case strings.Contains(location, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, location)
	default:
		return s.stageLocal(location)
	}
}

func (s *Stager) stageLocal(localPath string) (*Staged, error) {
	absPath, err := s.pathModifier.AbsPath(localPath)
	if err != nil {
		return nil, fmt.Errorf("resolve path %s: %w", localPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("source %s is not a regular file", absPath)
	}

	if !strings.HasSuffix(absPath, zstdSuffix) {
		s.logger.Debugf("Using local image %s (%s)", absPath, units.HumanSizeWithPrecision(float64(info.Size()), 3))
		return &Staged{Path: absPath, Size: info.Size()}, nil
	}

	dir, err := s.stagingDir()
	if err != nil {
		return nil, err
	}
	staged, err := s.decompress(absPath, dir)
	if err != nil {
		os.RemoveAll(dir) //nolint:errcheck
		return nil, err
	}
	return staged, nil
}

func (s *Stager) stageRemote(ctx context.Context, location string) (*Staged, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse source location: %w", err)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return nil, fmt.Errorf("source location %s has no file name", location)
	}

	dir, err := s.stagingDir()
	if err != nil {
		return nil, err
	}

	staged, err := s.download(ctx, u, filepath.Join(dir, name))
	if err != nil {
		os.RemoveAll(dir) //nolint:errcheck
		return nil, err
	}
	return staged, nil
}

func (s *Stager) download(ctx context.Context, u *url.URL, dest string) (*Staged, error) {
	startTime := time.Now()
	s.logger.Infof("Downloading %s", u.Redacted())

	var err error
	if u.Scheme == "s3" {
		err = s.s3.download(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), dest)
	} else {
		err = s.http.download(ctx, u.String(), dest)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", u.Redacted(), err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat downloaded image: %w", err)
	}
	s.logger.Donef("Downloaded %s in %s", units.HumanSizeWithPrecision(float64(info.Size()), 3), time.Since(startTime).Round(time.Second))

	dir := filepath.Dir(dest)
	if strings.HasSuffix(dest, zstdSuffix) {
		staged, err := s.decompress(dest, dir)
		if err != nil {
			return nil, err
		}
		if err := os.Remove(dest); err != nil {
			s.logger.Warnf("Failed to remove compressed image %s: %s", dest, err)
		}
		return staged, nil
	}

	return &Staged{Path: dest, Size: info.Size(), cleanup: removeDir(dir)}, nil
}

func (s *Stager) stagingDir() (string, error) {
	dir, err := os.MkdirTemp(s.config.StagingDir, stagePrefix)
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

func removeDir(dir string) func() error {
	return func() error {
		return os.RemoveAll(dir)
	}
}
