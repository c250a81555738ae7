package transform

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// Resize scales an image to exactly Width x Height.
type Resize struct {
	Width  int
	Height int
}

func (r Resize) ID() string {
	return fmt.Sprintf("resize:%dx%d", r.Width, r.Height)
}

func (r Resize) Process(img image.Image) (image.Image, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("resize: invalid target %dx%d", r.Width, r.Height)
	}
	return imaging.Resize(img, r.Width, r.Height, imaging.Lanczos), nil
}

// Fit scales an image down to fit within Width x Height, preserving the
// aspect ratio. Images already within bounds are returned unchanged.
type Fit struct {
	Width  int
	Height int
}

func (f Fit) ID() string {
	return fmt.Sprintf("fit:%dx%d", f.Width, f.Height)
}

func (f Fit) Process(img image.Image) (image.Image, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("fit: invalid target %dx%d", f.Width, f.Height)
	}
	b := img.Bounds()
	if b.Dx() <= f.Width && b.Dy() <= f.Height {
		return img, nil
	}
	return imaging.Fit(img, f.Width, f.Height, imaging.Lanczos), nil
}

// GaussianBlur blurs an image with the given radius.
type GaussianBlur struct {
	Radius float64
}

func (g GaussianBlur) ID() string {
	return fmt.Sprintf("blur:%.1f", g.Radius)
}

func (g GaussianBlur) Process(img image.Image) (image.Image, error) {
	if g.Radius <= 0 {
		return img, nil
	}
	return blur.Gaussian(img, g.Radius), nil
}

// Grayscale converts an image to grayscale.
type Grayscale struct{}

func (Grayscale) ID() string { return "grayscale" }

func (Grayscale) Process(img image.Image) (image.Image, error) {
	return effect.Grayscale(img), nil
}

// Duotone maps image luminance onto a gradient between Shadow and Highlight,
// blended in Lab space so the midtones stay perceptually even.
type Duotone struct {
	Shadow    color.Color
	Highlight color.Color
}

func (d Duotone) ID() string {
	sr, sg, sb, _ := d.Shadow.RGBA()
	hr, hg, hb, _ := d.Highlight.RGBA()
	return fmt.Sprintf("duotone:%04x%04x%04x-%04x%04x%04x", sr, sg, sb, hr, hg, hb)
}

func (d Duotone) Process(img image.Image) (image.Image, error) {
	shadow, ok := colorful.MakeColor(d.Shadow)
	if !ok {
		return nil, fmt.Errorf("duotone: shadow color is fully transparent")
	}
	highlight, ok := colorful.MakeColor(d.Highlight)
	if !ok {
		return nil, fmt.Errorf("duotone: highlight color is fully transparent")
	}

	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				out.Set(x, y, color.Transparent)
				continue
			}
			l, _, _ := c.Lab()
			out.Set(x, y, shadow.BlendLab(highlight, clamp01(l)).Clamped())
		}
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
