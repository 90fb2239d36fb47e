package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

const globChars = "*?[{"

type image struct {
	Location string
	Blob     string
}

type sourceExpander struct {
	logger       log.Logger
	pathModifier pathutil.PathModifier
}

// expand resolves local glob patterns and pairs every source with the blob it is uploaded to.
// Remote locations are passed through untouched.
func (e sourceExpander) expand(sources []string, blobName string) ([]image, error) {
	var locations []string
	for _, src := range sources {
		if strings.Contains(src, "://") || !strings.ContainsAny(src, globChars) {
			locations = append(locations, src)
			continue
		}

		base, pattern := doublestar.SplitPattern(src)
		absBase, err := e.pathModifier.AbsPath(base)
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), pattern, doublestar.WithNoFollow())
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern %s: %w", src, err)
		}
		if len(matches) == 0 {
			e.logger.Warnf("No match for source pattern: %s", src)
			continue
		}
		sort.Strings(matches)
		for _, match := range matches {
			locations = append(locations, filepath.Join(absBase, match))
		}
	}

	if len(locations) == 0 {
		return nil, fmt.Errorf("no source image found")
	}
	if blobName != "" && len(locations) > 1 {
		return nil, fmt.Errorf("blob name %s is set, but %d source images were found", blobName, len(locations))
	}

	images := make([]image, 0, len(locations))
	seen := map[string]string{}
	for _, location := range locations {
		blob := blobName
		if blob == "" {
			blob = defaultBlobName(location)
		}
		if other, ok := seen[blob]; ok {
			return nil, fmt.Errorf("%s and %s would both be uploaded to blob %s", other, location, blob)
		}
		seen[blob] = location
		images = append(images, image{Location: location, Blob: blob})
	}
	return images, nil
}

// defaultBlobName is the base name of the location without the compression suffix.
func defaultBlobName(location string) string {
	name := path.Base(filepath.ToSlash(location))
	if i := strings.IndexAny(name, "?#"); i >= 0 && strings.Contains(location, "://") {
		name = name[:i]
	}
	return strings.TrimSuffix(name, ".zst")
}
