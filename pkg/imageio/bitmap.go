package imageio

import (
	"fmt"
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/abworrall/ambient-viewer/pkg/emath"
)

// A Bitmap is a decoded image as packed 0xAARRGGBB pixels, row by row. This
// is the buffer layout the pixel transforms work on.
type Bitmap struct {
	Width, Height int
	Pix           []uint32
}

func NewBitmap(w, h int) *Bitmap {
	return &Bitmap{Width: w, Height: h, Pix: make([]uint32, w*h)}
}

func ARGB(a, r, g, b uint8) uint32 {
	return uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func Channels(p uint32) (a, r, g, b uint8) {
	return uint8(p >> 24), uint8(p >> 16), uint8(p >> 8), uint8(p)
}

// FromImage converts any image into a Bitmap, dropping alpha premultiplication.
func FromImage(img image.Image) *Bitmap {
	bounds := img.Bounds()
	bm := NewBitmap(bounds.Dx(), bounds.Dy())

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			bm.Pix[(y-bounds.Min.Y)*bm.Width+(x-bounds.Min.X)] = ARGB(c.A, c.R, c.G, c.B)
		}
	}
	return bm
}

func (bm *Bitmap) String() string { return fmt.Sprintf("Bitmap[%dx%d]", bm.Width, bm.Height) }

func (bm *Bitmap) Bounds() image.Rectangle { return image.Rect(0, 0, bm.Width, bm.Height) }

func (bm *Bitmap) Copy() *Bitmap {
	c := &Bitmap{Width: bm.Width, Height: bm.Height, Pix: make([]uint32, len(bm.Pix))}
	copy(c.Pix, bm.Pix)
	return c
}

// CopyFrom overwrites the pixels in place; the dimensions must match.
func (bm *Bitmap) CopyFrom(pix []uint32) error {
	if len(pix) != len(bm.Pix) {
		return fmt.Errorf("imageio: copy of %d pixels into %s", len(pix), bm)
	}
	copy(bm.Pix, pix)
	return nil
}

func (bm *Bitmap) Image() *image.NRGBA {
	img := image.NewNRGBA(bm.Bounds())
	for i, p := range bm.Pix {
		a, r, g, b := Channels(p)
		img.Pix[4*i+0] = r
		img.Pix[4*i+1] = g
		img.Pix[4*i+2] = b
		img.Pix[4*i+3] = a
	}
	return img
}

var linearTable = func() [256]float64 {
	var t [256]float64
	for i := range t {
		t[i], _, _ = colorful.Color{R: float64(i) / 255.0}.LinearRgb()
	}
	return t
}()

// Linearize maps an 8-bit sRGB channel value to linear light in [0,1].
func Linearize(v uint8) float64 { return linearTable[v] }

// Delinearize maps linear light back to an 8-bit sRGB channel value, clipping.
func Delinearize(f float64) uint8 {
	c := colorful.LinearRgb(emath.Clamp(f, 0, 1), 0, 0)
	return uint8(emath.Clamp(c.R*255.0+0.5, 0, 255))
}

// A LinearImage views a Bitmap as linear HDR colour, optionally corrected by
// a 3x3 matrix and scaled by an exposure multiplier. Implements hdr.Image.
type LinearImage struct {
	*Bitmap
	Transform emath.Mat3
	Exposure  float64
}

func NewLinearImage(bm *Bitmap) *LinearImage {
	return &LinearImage{Bitmap: bm, Transform: emath.Identity3(), Exposure: 1.0}
}

// Implement image.Image
func (li *LinearImage) ColorModel() color.Model { return hdrcolor.RGBModel }
func (li *LinearImage) At(x, y int) color.Color { return li.HDRAt(x, y) }

// Implement hdr.Image
func (li *LinearImage) Size() int { return li.Width * li.Height }

func (li *LinearImage) HDRAt(x, y int) hdrcolor.Color {
	_, r, g, b := Channels(li.Pix[y*li.Width+x])
	v := li.Transform.Apply(emath.Vec3{Linearize(r), Linearize(g), Linearize(b)})
	v.FloorAt(0.0)
	return hdrcolor.RGB{R: v[0] * li.Exposure, G: v[1] * li.Exposure, B: v[2] * li.Exposure}
}
