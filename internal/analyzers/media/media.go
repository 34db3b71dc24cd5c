// Package media extracts tags and container details from audio and video
// files.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dhowden/tag"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

const analyzerName = "media"

var extensions = []string{
	".mp3", ".flac", ".ogg", ".m4a", ".aac",
	".wav", ".mp4", ".mov", ".avi", ".mkv", ".webm",
}

type Analyzer struct{}

func New() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Name() string {
	return analyzerName
}

func (a *Analyzer) Extensions() []string {
	return slices.Clone(extensions)
}

func (a *Analyzer) CanAnalyze(path string) bool {
	return slices.Contains(extensions, strings.ToLower(filepath.Ext(path)))
}

func (a *Analyzer) Analyze(ctx context.Context, path string) analyze.Result {
	res := analyze.New(path, analyzerName)

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.SetError(fmt.Sprintf("analysis cancelled: %v", ctxErr))

		return res
	}

	f, openErr := os.Open(path)
	if openErr != nil {
		res.SetError(fmt.Sprintf("open media file: %v", openErr))

		return res
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".avi":
		analyzeRIFF(&res, f)
	case ".mkv", ".webm":
		analyzeEBML(&res, f)
	case ".mp4", ".mov":
		// Tag-less MP4 containers still reveal their brand.
		if tagErr := readTags(&res, f); tagErr != nil {
			analyzeFTYP(&res, f)
		}
	default:
		if tagErr := readTags(&res, f); tagErr != nil {
			res.SetError(fmt.Sprintf("read tags: %v", tagErr))
		}
	}

	return res
}

// readTags extracts embedded tags. A container without tags is fine;
// unparseable input is an error.
func readTags(res *analyze.Result, f *os.File) error {
	meta, readErr := tag.ReadFrom(f)
	if readErr != nil {
		if errors.Is(readErr, tag.ErrNoTagsFound) {
			res.Metadata["has_tags"] = false

			return nil
		}

		return readErr
	}

	res.Metadata["has_tags"] = true
	res.Metadata["format"] = string(meta.Format())
	res.Metadata["file_type"] = string(meta.FileType())

	setNonEmpty(res.Metadata, "title", meta.Title())
	setNonEmpty(res.Metadata, "artist", meta.Artist())
	setNonEmpty(res.Metadata, "album", meta.Album())
	setNonEmpty(res.Metadata, "album_artist", meta.AlbumArtist())
	setNonEmpty(res.Metadata, "genre", meta.Genre())

	if year := meta.Year(); year > 0 {
		res.Metadata["year"] = year
	}

	if track, total := meta.Track(); track > 0 {
		res.Metadata["track"] = track

		if total > 0 {
			res.Metadata["track_total"] = total
		}
	}

	res.Metadata["has_artwork"] = meta.Picture() != nil

	return nil
}

func setNonEmpty(metadata map[string]any, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		metadata[key] = value
	}
}
