// Command diskupload uploads raw disk images to Azure page blobs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitrise-io/go-diskupload/source"
	"github.com/bitrise-io/go-diskupload/stepconf"
	"github.com/bitrise-io/go-diskupload/upload"
	"github.com/bitrise-io/go-diskupload/upload/pageblob"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
)

func main() {
	logger := log.NewLogger()
	if err := run(logger, env.NewRepository()); err != nil {
		logger.Println()
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}

func run(logger log.Logger, envRepo env.Repository) error {
	config, err := stepconf.Load(envRepo)
	if err != nil {
		return fmt.Errorf("failed to parse configs: %w", err)
	}
	logger.EnableDebugLog(config.Verbose)
	config.Print(logger)
	logger.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	expander := sourceExpander{logger: logger, pathModifier: pathutil.NewPathModifier()}
	images, err := expander.expand(config.Sources, config.BlobName)
	if err != nil {
		return err
	}

	client, err := pageblob.NewClient(pageblob.Params{
		ServiceURL:  string(config.ServiceURL),
		AccountName: config.AccountName,
		AccountKey:  string(config.AccountKey),
		HTTPClient:  upload.DefaultHTTPClient(config.Upload.Concurrency),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create blob client: %w", err)
	}
	if err := client.EnsureContainer(ctx, config.Container); err != nil {
		return err
	}

	stager := source.NewStager(config.Source, logger)
	engine := upload.New(client, config.Upload, logger)

	for _, img := range images {
		if err := uploadImage(ctx, logger, stager, engine, img, config.Container); err != nil {
			return err
		}
	}

	logger.Donef("Uploaded %d image(s) to container %s", len(images), config.Container)
	return nil
}

func uploadImage(ctx context.Context, logger log.Logger, stager *source.Stager, engine *upload.Engine, img image, container string) error {
	logger.Infof("Uploading %s", img.Location)

	staged, err := stager.Stage(ctx, img.Location)
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", img.Location, err)
	}
	defer func() {
		if err := staged.Cleanup(); err != nil {
			logger.Warnf("Failed to clean up staged image %s: %s", staged.Path, err)
		}
	}()

	dst := upload.Destination{Container: container, Blob: img.Blob}
	if _, err := engine.Upload(ctx, staged.Path, dst); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", img.Location, dst, err)
	}
	return nil
}
