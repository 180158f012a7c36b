// Package assets resolves image element paths to decoded rasters for the
// renderer: local files, remote URLs and uploaded assets.
package assets

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// MaxAssetBytes bounds how much of one asset is read.
const MaxAssetBytes = 64 << 20

// Decode reads an image in any registered format, applying the EXIF
// orientation of JPEG photos.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(io.LimitReader(r, MaxAssetBytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
