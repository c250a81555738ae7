package transform

import (
	"image"
	"image/color"
	"testing"
)

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func TestResize(t *testing.T) {
	out, err := Resize{Width: 10, Height: 20}.Process(gradient(40, 40))
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if b := out.Bounds(); b.Dx() != 10 || b.Dy() != 20 {
		t.Fatalf("bounds = %v, want 10x20", b)
	}
}

func TestResizeInvalidTarget(t *testing.T) {
	if _, err := (Resize{Width: 0, Height: 20}).Process(gradient(4, 4)); err == nil {
		t.Fatal("expected an error for a zero dimension")
	}
}

func TestFitScalesDownPreservingAspect(t *testing.T) {
	out, err := Fit{Width: 20, Height: 20}.Process(gradient(100, 50))
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if b := out.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Fatalf("bounds = %v, want 20x10", b)
	}
}

func TestFitLeavesSmallImagesAlone(t *testing.T) {
	img := gradient(10, 10)
	out, err := Fit{Width: 20, Height: 20}.Process(img)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if out != img {
		t.Fatal("image within bounds must be returned unchanged")
	}
}

func TestGaussianBlur(t *testing.T) {
	out, err := GaussianBlur{Radius: 2}.Process(gradient(16, 16))
	if err != nil {
		t.Fatalf("blur: %v", err)
	}
	if b := out.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Fatalf("bounds = %v, want 16x16", b)
	}
}

func TestGaussianBlurZeroRadiusIsNoop(t *testing.T) {
	img := gradient(8, 8)
	out, err := GaussianBlur{Radius: 0}.Process(img)
	if err != nil {
		t.Fatalf("blur: %v", err)
	}
	if out != img {
		t.Fatal("zero radius must return the input unchanged")
	}
}

func TestGrayscale(t *testing.T) {
	out, err := Grayscale{}.Process(gradient(8, 8))
	if err != nil {
		t.Fatalf("grayscale: %v", err)
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			r, g, b, _ := out.At(x, y).RGBA()
			if r != g || g != b {
				t.Fatalf("pixel (%d,%d) = %d,%d,%d is not gray", x, y, r, g, b)
			}
		}
	}
}

func TestDuotoneMapsExtremes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{A: 255})                         // black
	img.Set(1, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255}) // white

	shadow := color.RGBA{R: 20, G: 30, B: 60, A: 255}
	highlight := color.RGBA{R: 250, G: 240, B: 220, A: 255}
	out, err := Duotone{Shadow: shadow, Highlight: highlight}.Process(img)
	if err != nil {
		t.Fatalf("duotone: %v", err)
	}

	closeTo := func(got, want uint32) bool {
		d := int64(got) - int64(want)
		return d > -1200 && d < 1200
	}
	r, g, b, _ := out.At(0, 0).RGBA()
	wr, wg, wb, _ := shadow.RGBA()
	if !closeTo(r, wr) || !closeTo(g, wg) || !closeTo(b, wb) {
		t.Fatalf("black pixel mapped to %d,%d,%d, want near shadow %d,%d,%d", r, g, b, wr, wg, wb)
	}
	r, g, b, _ = out.At(1, 0).RGBA()
	wr, wg, wb, _ = highlight.RGBA()
	if !closeTo(r, wr) || !closeTo(g, wg) || !closeTo(b, wb) {
		t.Fatalf("white pixel mapped to %d,%d,%d, want near highlight %d,%d,%d", r, g, b, wr, wg, wb)
	}
}

func TestDuotoneRejectsTransparentEndpoints(t *testing.T) {
	if _, err := (Duotone{Shadow: color.Transparent, Highlight: color.White}).Process(gradient(2, 2)); err == nil {
		t.Fatal("expected an error for a transparent shadow color")
	}
}

func TestIDsAreStable(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{Resize{Width: 800, Height: 600}.ID(), "resize:800x600"},
		{Fit{Width: 1024, Height: 768}.ID(), "fit:1024x768"},
		{GaussianBlur{Radius: 2.5}.ID(), "blur:2.5"},
		{Grayscale{}.ID(), "grayscale"},
	}
	for _, tt := range tests {
		if tt.id != tt.want {
			t.Errorf("ID = %q, want %q", tt.id, tt.want)
		}
	}
}
