package imageio

// A few helper routines for writing results out

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/fogleman/gg"
	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
)

func WritePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return png.Encode(writer, img)
	}
}

// WriteAnnotatedPNG draws a caption in the top left corner, e.g. the
// parameters that produced the image.
func WriteAnnotatedPNG(img image.Image, caption, filename string) error {
	dc := gg.NewContextForImage(img)
	dc.SetRGB(0, 0, 0)
	dc.DrawString(caption, 21, 31)
	dc.SetRGB(1, 1, 1)
	dc.DrawString(caption, 20, 30)
	if err := dc.SavePNG(filename); err != nil {
		return fmt.Errorf("save '%s': %v", filename, err)
	}
	return nil
}

// WriteHDR outputs a Radiance RGBE image. You can load this into photoshop or other HDR tools.
func WriteHDR(img hdr.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return rgbe.Encode(writer, img)
	}
}
