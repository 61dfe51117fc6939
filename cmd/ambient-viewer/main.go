package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abworrall/ambient-viewer/pkg/algorithm"
	"github.com/abworrall/ambient-viewer/pkg/app"
	"github.com/abworrall/ambient-viewer/pkg/imageio"
	"github.com/abworrall/ambient-viewer/pkg/viewer"
)

var (
	fVerbosity   int
	fConfig      string
	fAlgorithm   string
	fLightSensor string
	fCamera      string
	fDuration    time.Duration
	fOutput      string
	fAnnotate    bool
	fHDR         string
	fManual      float64
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fConfig, "config", app.DefaultConfigPath, "YAML config file, if it exists")
	flag.StringVar(&fAlgorithm, "algorithm", "", "how to adapt the image: "+algorithm.ListAlgorithms())
	flag.StringVar(&fLightSensor, "als", "", "light sensor driver: sim, iio or none")
	flag.StringVar(&fCamera, "camera", "", "camera driver: sim or none")
	flag.DurationVar(&fDuration, "for", 5*time.Second, "how long to keep following the sensors")
	flag.StringVar(&fOutput, "o", "", "name of the output PNG of the displayed image")
	flag.BoolVar(&fAnnotate, "annotate", false, "caption the output with the parameters")
	flag.StringVar(&fHDR, "hdr", "", "also write the working image as linear RGBE")
	flag.Float64Var(&fManual, "manual", -1, "manual mode, with this parameter (negative for automatic)")
	flag.Parse()
}

func main() {
	if flag.NArg() != 1 {
		log.Fatalf("usage: %s [flags] image.jpg", os.Args[0])
	}

	cfg, err := app.LoadDefaultConfig()
	if fConfig != app.DefaultConfigPath {
		cfg, err = app.LoadConfig(fConfig)
	}
	if err != nil {
		log.Fatal(err)
	}

	// Override the config file with command line args, if relevant
	if fVerbosity > 0 {
		cfg.Verbosity = fVerbosity
	}
	if fAlgorithm != "" {
		cfg.Algorithm = fAlgorithm
	}
	if fLightSensor != "" {
		cfg.LightSensor.Driver = fLightSensor
	}
	if fCamera != "" {
		cfg.Camera.Driver = fCamera
	}
	if fOutput != "" {
		cfg.Output.Filename = fOutput
	}
	if fHDR != "" {
		cfg.Output.HDRFilename = fHDR
	}
	if fAnnotate {
		cfg.Output.Annotate = true
	}
	if fManual >= 0 {
		cfg.ManualMode = true
		cfg.ManualParameter = fManual
	}

	logger := app.NewLogger(cfg.Verbosity)
	if cfg.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}

	d, err := app.NewDeps(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, fDuration)
	defer cancel()

	a := app.New(d)
	d.Do(func() { err = a.Start(flag.Arg(0)) })
	if err != nil {
		log.Fatal(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if d.SimSensor != nil {
		g.Go(func() error {
			err := d.SimSensor.Play(gctx, cfg.LightSensor.SimInterval, cfg.LightSensor.SimReadings...)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				d.Do(func() {
					logger.Info("status", "state", a.Presenter.State.Value(), "lux", d.Sensor.Lux.Value(),
						"parameter", a.Presenter.Parameter.Value(), "colorinfo", d.Camera.ColorInfo.Value())
				})
			}
		}
	})
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}

	d.Do(a.Stop)

	var werr error
	d.Do(func() { werr = writeOutputs(a.Presenter, cfg.Output) })
	if werr != nil {
		log.Fatal(werr)
	}

	log.Printf("%s", a.Presenter.Stats())
	log.Printf("light sensor: %s", d.Sensor.Stats())
}

func writeOutputs(p *viewer.Presenter, out app.OutputConfig) error {
	img := p.Displaying.Value()
	if img == nil {
		return fmt.Errorf("nothing displayed (state %s)", p.State.Value())
	}

	if out.Annotate {
		caption := img.Kind.String()
		if img.Parameters != nil {
			caption = img.Parameters.String()
		}
		if err := imageio.WriteAnnotatedPNG(img.Bitmap.Image(), caption, out.Filename); err != nil {
			return err
		}
	} else if err := imageio.WritePNG(img.Bitmap.Image(), out.Filename); err != nil {
		return err
	}
	log.Printf("displayed %s written to '%s'\n", img, out.Filename)

	if out.HDRFilename != "" {
		w := p.Working()
		if w == nil {
			return fmt.Errorf("no working image to write")
		}
		if err := imageio.WriteHDR(imageio.NewLinearImage(w.Bitmap), out.HDRFilename); err != nil {
			return err
		}
		log.Printf("linear HDR written to '%s'\n", out.HDRFilename)
	}
	return nil
}
