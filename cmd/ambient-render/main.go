package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/abworrall/ambient-viewer/pkg/algorithm"
	"github.com/abworrall/ambient-viewer/pkg/app"
	"github.com/abworrall/ambient-viewer/pkg/ecolor"
	"github.com/abworrall/ambient-viewer/pkg/imageio"
)

var (
	fVerbosity int
	fAlgorithm string
	fLux       int
	fParameter float64
	fGains     string
	fOutDir    string
	fAnnotate  bool
	fHDR       bool
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fAlgorithm, "algorithm", "", "how to adapt the image: "+algorithm.ListAlgorithms())
	flag.IntVar(&fLux, "lux", 200, "ambient light to render for")
	flag.Float64Var(&fParameter, "p", math.NaN(), "use this parameter instead of deriving it from -lux")
	flag.StringVar(&fGains, "gains", "", "camera white balance gains as r,g,b (default none)")
	flag.StringVar(&fOutDir, "o", ".", "directory for the output images")
	flag.BoolVar(&fAnnotate, "annotate", false, "caption the output with the parameters")
	flag.BoolVar(&fHDR, "hdr", false, "also write each input as linear RGBE")
	flag.Parse()

	log.Printf("ambient-render starting\n")
}

func parseGains(s string) (ecolor.Gains, error) {
	if s == "" {
		return ecolor.IdentityGains(), nil
	}
	var r, g, b float64
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, ",", " "), "%g %g %g", &r, &g, &b); err != nil {
		return ecolor.Gains{}, fmt.Errorf("gains %q: %v", s, err)
	}
	return ecolor.NewGains(r, g, b)
}

func main() {
	cfg, files, err := app.CollectInputs(app.NewConfig(), flag.Args()...)
	if err != nil {
		log.Fatal(err)
	}
	if fVerbosity > 0 {
		cfg.Verbosity = fVerbosity
	}
	if fAlgorithm != "" {
		cfg.Algorithm = fAlgorithm
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if cfg.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}

	gains, err := parseGains(fGains)
	if err != nil {
		log.Fatal(err)
	}
	ci := ecolor.ColorInfo{Gains: gains, Matrix: ecolor.IdentityMatrix()}

	opts := imageio.Options{ScreenMaxSize: cfg.ScreenMaxSize, AcceptedTypes: []string{imageio.MimeJPEG, imageio.MimePNG, imageio.MimeTIFF}}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, file := range files {
		file := file
		g.Go(func() error { return render(file, cfg.Algorithm, ci, opts, cfg.UseColorInfo) })
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	log.Printf("%d images rendered\n", len(files))
}

// render gives each file its own algorithm instance, since they aren't safe
// to share.
func render(file, name string, ci ecolor.ColorInfo, opts imageio.Options, useColorInfo bool) error {
	alg, err := algorithm.New(name)
	if err != nil {
		return err
	}

	d, err := imageio.Import(file, opts)
	if err != nil {
		return err
	}

	param := fParameter
	if math.IsNaN(param) {
		param = alg.Meta().DefaultParameter(fLux)
	}
	params := algorithm.Parameters{Parameter: param, ColorInfo: ci, UseColorInfo: useColorInfo}

	bm := d.Bitmap.Copy()
	algorithm.Run(alg, params, bm.Pix, bm.Width, bm.Height)

	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	out := filepath.Join(fOutDir, fmt.Sprintf("%s-%s.png", base, name))
	if fAnnotate {
		err = imageio.WriteAnnotatedPNG(bm.Image(), params.String(), out)
	} else {
		err = imageio.WritePNG(bm.Image(), out)
	}
	if err != nil {
		return err
	}
	log.Printf("%s (%s) -> %s [%s]\n", file, d.Bitmap, out, params)

	if fHDR {
		hdrOut := filepath.Join(fOutDir, base+"-linear.hdr")
		if err := imageio.WriteHDR(imageio.NewLinearImage(d.Bitmap), hdrOut); err != nil {
			return err
		}
	}
	return nil
}
