package photo

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

// ImageInfo is the probed header of an image file.
type ImageInfo struct {
	Width  int
	Height int
	Format string
	MIME   string
}

// Probe reads the image header at path.
func Probe(path string) (*ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to sniff image: %w", err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("not an image: %s", mtype.String())
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind image: %w", err)
	}

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format, MIME: mtype.String()}, nil
}

// load decodes the image at path, applying EXIF orientation.
func load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// extension returns the lower-cased extension of path, defaulting to .jpg.
func extension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpeg":
		return ".jpg"
	case "":
		return ".jpg"
	}
	return ext
}
