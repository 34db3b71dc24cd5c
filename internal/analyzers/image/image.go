// Package image extracts dimensions, format details, and EXIF metadata
// from photographic files.
package image

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	// Register stdlib decoders for DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"

	// Register extended decoders for DecodeConfig.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

const analyzerName = "image"

var extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".webp"}

// Analyzer reads image headers without decoding pixel data, so large
// files stay cheap.
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
		res.SetError(fmt.Sprintf("open image: %v", openErr))

		return res
	}
	defer f.Close()

	cfg, format, decodeErr := image.DecodeConfig(f)
	if decodeErr != nil {
		res.SetError(fmt.Sprintf("decode image header: %v", decodeErr))

		return res
	}

	res.Metadata["format"] = format
	res.Metadata["width"] = cfg.Width
	res.Metadata["height"] = cfg.Height
	res.Metadata["megapixels"] = round2(float64(cfg.Width) * float64(cfg.Height) / 1e6)
	res.Metadata["has_alpha"] = hasAlpha(cfg.ColorModel)

	if cfg.Height > 0 {
		res.Metadata["aspect_ratio"] = round2(float64(cfg.Width) / float64(cfg.Height))
	}

	// Only JPEG and TIFF carry EXIF.
	if format == "jpeg" || format == "tiff" {
		attachEXIF(res.Metadata, f)
	}

	return res
}

// attachEXIF merges categorized EXIF data into the metadata map. Images
// without EXIF are common; absence is not an error.
func attachEXIF(metadata map[string]any, f *os.File) {
	if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
		return
	}

	x, decodeErr := exif.Decode(f)
	if decodeErr != nil {
		metadata["has_exif"] = false

		return
	}

	metadata["has_exif"] = true

	if camera := cameraFields(x); len(camera) > 0 {
		metadata["camera"] = camera
	}

	if technical := technicalFields(x); len(technical) > 0 {
		metadata["technical"] = technical
	}

	if lat, long, gpsErr := x.LatLong(); gpsErr == nil {
		metadata["gps"] = map[string]any{
			"latitude":  lat,
			"longitude": long,
		}
	}
}

func cameraFields(x *exif.Exif) map[string]any {
	camera := map[string]any{}

	setString(camera, "make", x, exif.Make)
	setString(camera, "model", x, exif.Model)
	setString(camera, "software", x, exif.Software)

	return camera
}

func technicalFields(x *exif.Exif) map[string]any {
	technical := map[string]any{}

	if taken, dateErr := x.DateTime(); dateErr == nil {
		technical["datetime"] = taken.Format(time.RFC3339)
	}

	if exposure, ok := rationalString(x, exif.ExposureTime); ok {
		technical["exposure_time"] = exposure
	}

	if fNumber, ok := rationalValue(x, exif.FNumber); ok {
		technical["f_number"] = round2(fNumber)
	}

	if tag, getErr := x.Get(exif.ISOSpeedRatings); getErr == nil {
		if iso, intErr := tag.Int(0); intErr == nil {
			technical["iso"] = iso
		}
	}

	if focal, ok := rationalValue(x, exif.FocalLength); ok {
		technical["focal_length_mm"] = round2(focal)
	}

	return technical
}

func setString(into map[string]any, key string, x *exif.Exif, field exif.FieldName) {
	tag, getErr := x.Get(field)
	if getErr != nil {
		return
	}

	value, strErr := tag.StringVal()
	if strErr != nil {
		return
	}

	value = strings.TrimSpace(value)
	if value != "" {
		into[key] = value
	}
}

func rationalString(x *exif.Exif, field exif.FieldName) (string, bool) {
	tag, getErr := x.Get(field)
	if getErr != nil {
		return "", false
	}

	rat, ratErr := tag.Rat(0)
	if ratErr != nil {
		return "", false
	}

	return rat.RatString(), true
}

func rationalValue(x *exif.Exif, field exif.FieldName) (float64, bool) {
	tag, getErr := x.Get(field)
	if getErr != nil {
		return 0, false
	}

	rat, ratErr := tag.Rat(0)
	if ratErr != nil {
		return 0, false
	}

	value, _ := rat.Float64()

	return value, true
}

func hasAlpha(model color.Model) bool {
	switch model {
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model,
		color.AlphaModel, color.Alpha16Model:
		return true
	default:
		return false
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
