package utils

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	bg "github.com/setanarut/bgnormalize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// GridsFromImage splits img into 8-bit channel grids: one for grayscale
// images, three (R, G, B) otherwise. Colors are un-premultiplied; fully
// transparent pixels become 0.
func GridsFromImage(img image.Image) []*bg.Grid[uint8] {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch img.(type) {
	case *image.Gray, *image.Gray16:
		gray := bg.NewGrid[uint8](w, h)
		for y := range h {
			for x := range w {
				c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				gray.Set(x, y, c.Y)
			}
		}
		return []*bg.Grid[uint8]{gray}
	}

	r := bg.NewGrid[uint8](w, h)
	g := bg.NewGrid[uint8](w, h)
	bl := bg.NewGrid[uint8](w, h)
	for y := range h {
		for x := range w {
			col, ok := colorful.MakeColor(img.At(b.Min.X+x, b.Min.Y+y))
			if !ok {
				continue
			}
			cr, cg, cb := col.Clamped().RGB255()
			r.Set(x, y, cr)
			g.Set(x, y, cg)
			bl.Set(x, y, cb)
		}
	}
	return []*bg.Grid[uint8]{r, g, bl}
}

// ImageFromGrids assembles channel grids back into an image: *image.Gray for
// one channel, opaque *image.RGBA for three.
func ImageFromGrids(channels []*bg.Grid[uint8]) (image.Image, error) {
	switch len(channels) {
	case 1:
		ch := channels[0]
		out := image.NewGray(image.Rect(0, 0, ch.W, ch.H))
		for y := range ch.H {
			copy(out.Pix[y*out.Stride:y*out.Stride+ch.W], ch.Row(y))
		}
		return out, nil
	case 3:
		r, g, b := channels[0], channels[1], channels[2]
		if g.W != r.W || g.H != r.H || b.W != r.W || b.H != r.H {
			return nil, fmt.Errorf("assemble rgb: %w", bg.ErrShapeMismatch)
		}
		out := image.NewRGBA(image.Rect(0, 0, r.W, r.H))
		for y := range r.H {
			for x := range r.W {
				out.SetRGBA(x, y, color.RGBA{R: r.At(x, y), G: g.At(x, y), B: b.At(x, y), A: 255})
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("assemble image from %d channels: %w", len(channels), bg.ErrUnsupportedArity)
	}
}

// MaskFromImage marks as background every pixel whose CIE L* lightness is at
// least 0.5. With invert set, dark pixels are background instead.
// Transparent pixels are never background.
func MaskFromImage(img image.Image, invert bool) *bg.Grid[bool] {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	mask := bg.NewGrid[bool](w, h)
	for y := range h {
		for x := range w {
			col, ok := colorful.MakeColor(img.At(b.Min.X+x, b.Min.Y+y))
			if !ok {
				continue
			}
			l, _, _ := col.Clamped().Lab()
			mask.Set(x, y, (l >= 0.5) != invert)
		}
	}
	return mask
}

func ReadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func SaveImage(img image.Image, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveGrid writes a single channel grid as a grayscale PNG.
func SaveGrid(g *bg.Grid[uint8], filename string) error {
	img, err := ImageFromGrids([]*bg.Grid[uint8]{g})
	if err != nil {
		return err
	}
	return SaveImage(img, filename)
}

// SaveChannels writes channel grids as a grayscale or RGB PNG.
func SaveChannels(channels []*bg.Grid[uint8], filename string) error {
	img, err := ImageFromGrids(channels)
	if err != nil {
		return err
	}
	return SaveImage(img, filename)
}
