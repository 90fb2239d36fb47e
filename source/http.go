package source

import (
	"context"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/melbahja/got"
)

type httpDownloader interface {
	download(ctx context.Context, url, dest string) error
}

type gotDownloader struct {
	client *http.Client
}

func newHTTPDownloader(logger log.Logger) gotDownloader {
	retryableClient := retryhttp.NewClient(logger)
	retryableClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		retry, checkErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		if retry {
			logger.Debugf("Retrying image download request: %v", err)
		}
		return retry, checkErr
	}

	return gotDownloader{client: retryableClient.StandardClient()}
}

func (d gotDownloader) download(ctx context.Context, url, dest string) error {
	downloader := got.New()
	downloader.Client = d.client

	return downloader.Do(got.NewDownload(ctx, url, dest))
}
