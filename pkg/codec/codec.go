package codec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// Decoder decodes raster images using the formats registered with the
// standard image package: PNG, JPEG, GIF, plus BMP, TIFF, and WebP.
//
// A Decoder is created per download and fed the accumulated byte buffer.
// Non-final attempts on incomplete data report "not enough data" rather than
// an error, which is what a progressive pipeline needs.
type Decoder struct {
	format string
}

// New creates a decoder.
func New() *Decoder {
	return &Decoder{}
}

// Decode decodes data. For final == false a (nil, nil) return means the
// buffer does not yet hold a decodable image. For final == true a failure
// to decode is an error.
func (d *Decoder) Decode(data []byte, final bool) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if final {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		return nil, nil
	}
	d.format = format
	return img, nil
}

// Format returns the format name of the last successful decode ("png",
// "jpeg", ...), or "" if nothing decoded yet.
func (d *Decoder) Format() string {
	return d.format
}
