package photo

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	apperrors "github.com/propsnap/backend/internal/errors"
)

// Adjustments are signed fractions in [-1, 1]; 0 leaves the property unchanged.
type Adjustments struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
}

// Validate checks every adjustment is within range.
func (a Adjustments) Validate() error {
	for name, v := range map[string]float64{
		"brightness": a.Brightness,
		"contrast":   a.Contrast,
		"saturation": a.Saturation,
	} {
		if v < -1 || v > 1 {
			return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("%s must be between -1 and 1, got %g", name, v))
		}
	}
	return nil
}

// IsZero reports whether no adjustment is requested.
func (a Adjustments) IsZero() bool {
	return a.Brightness == 0 && a.Contrast == 0 && a.Saturation == 0
}

// jpegQuality is used for every re-encoded image.
const jpegQuality = 90

// Enhance writes an adjusted JPEG copy of the image at path next to it and returns the
// new path. The original file is not modified.
func Enhance(ctx context.Context, path string, adj Adjustments) (string, error) {
	if err := adj.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := load(path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrImageDecode, "failed to load image for enhancement", err)
	}

	out := imaging.Clone(img)
	if adj.Brightness != 0 {
		out = imaging.AdjustBrightness(out, adj.Brightness*100)
	}
	if adj.Contrast != 0 {
		out = imaging.AdjustContrast(out, adj.Contrast*100)
	}
	if adj.Saturation != 0 {
		out = imaging.AdjustSaturation(out, adj.Saturation*100)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outPath := filepath.Join(filepath.Dir(path), fmt.Sprintf("%s_enhanced_%d.jpg", base, time.Now().UnixNano()))
	if err := imaging.Save(out, outPath, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to write enhanced image", err)
	}
	return outPath, nil
}
