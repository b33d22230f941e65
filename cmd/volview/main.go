// Command volview renders volume datasets headlessly through the shared
// resource manager.
//
// It can generate a synthetic BRK dataset, verify it, render it
// progressively from several views sharing one transfer function, and
// reload the transfer function when its file changes. At exit it reports
// resources that were not released and fails if any leaked.
//
//	volview -generate 64 -data sphere.brk -views 2
//	volview -config volren.toml -data head.brk -tf head.1dt -watch 1m
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/docker/go-units"

	"github.com/gogpu/volren"
	"github.com/gogpu/volren/config"
	"github.com/gogpu/volren/gpu"
	"github.com/gogpu/volren/gpumem"
	"github.com/gogpu/volren/render"
	"github.com/gogpu/volren/volume"
)

type options struct {
	configPath string
	data       string
	generate   int
	brick      int
	codec      string
	strategy   string
	tf         string
	views      int
	verify     bool
	watch      time.Duration
	slice      string
	level      string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "TOML configuration file")
	flag.StringVar(&o.data, "data", "sphere.brk", "BRK dataset to render")
	flag.IntVar(&o.generate, "generate", 0, "write a synthetic sphere of this edge length to -data first")
	flag.IntVar(&o.brick, "brick", 16, "brick edge length for -generate")
	flag.StringVar(&o.codec, "codec", "lz4", "brick codec for -generate (raw, lz4, zstd)")
	flag.StringVar(&o.strategy, "strategy", "", "rendering strategy (overrides config)")
	flag.StringVar(&o.tf, "tf", "", "1D transfer function file")
	flag.IntVar(&o.views, "views", 2, "number of views sharing the dataset")
	flag.BoolVar(&o.verify, "verify", true, "verify every brick before rendering")
	flag.DurationVar(&o.watch, "watch", 0, "keep reloading -tf on change for this long")
	flag.StringVar(&o.slice, "slice", "", "after refinement, show this axis:index slice in the first view")
	flag.StringVar(&o.level, "log", "", "log level (overrides config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o); err != nil {
		fmt.Fprintln(os.Stderr, "volview:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return err
		}
	}
	if o.strategy != "" {
		cfg.Render.Strategy = o.strategy
	}
	if o.level != "" {
		cfg.Log.Level = o.level
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	var slice *render.Slice
	if o.slice != "" {
		s, err := render.ParseSlice(o.slice)
		if err != nil {
			return err
		}
		slice = &s
	}
	level, _ := cfg.Log.SlogLevel()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	volren.SetLogger(log)

	if o.generate > 0 {
		if err := generate(o, log); err != nil {
			return err
		}
	}
	if o.verify {
		if err := verify(ctx, o.data, log); err != nil {
			return err
		}
	}

	dev, closeDevice, err := gpu.OpenNoop()
	if err != nil {
		return err
	}
	defer closeDevice()
	sys, err := cfg.Memory.SystemInfo(dev.AdapterInfo())
	if err != nil {
		return err
	}
	log.Info("volview: memory ceilings",
		"cpu", units.BytesSize(float64(sys.MaxUsableCPUMem())),
		"gpu", units.BytesSize(float64(sys.MaxUsableGPUMem())))

	mm := gpumem.New(dev,
		gpumem.WithLogger(log),
		gpumem.WithSystemInfo(sys),
		gpumem.WithProgramLoader(gpu.SourceLoader{FS: render.Shaders}),
	)

	views, err := openViews(mm, cfg, o, log)
	if err == nil {
		err = paint(ctx, views)
	}
	if err == nil && slice != nil {
		err = views[0].PaintSlice(*slice)
	}
	if err == nil && o.tf != "" && o.watch > 0 {
		err = watchTransferFunction(ctx, o.tf, o.watch, views, log)
	}
	for _, v := range views {
		v.Release()
	}

	log.Info("volview: "+mm.Stats().String())
	if cerr := mm.Close(); cerr != nil {
		var leaks *gpumem.LeakError
		if errors.As(cerr, &leaks) {
			log.Error("volview: resources leaked", "count", len(leaks.Leaks))
		}
		err = errors.Join(err, cerr)
	}
	return err
}

func generate(o options, log *slog.Logger) error {
	codec, err := volume.ParseCodec(o.codec)
	if err != nil {
		return err
	}
	n, b := o.generate, o.brick
	ds, err := volume.Sphere(o.data, volume.Coord{X: n, Y: n, Z: n}, volume.Coord{X: b, Y: b, Z: b})
	if err != nil {
		return err
	}
	if err := volume.WriteFile(o.data, ds, codec); err != nil {
		return err
	}
	log.Info("volview: dataset written", "path", o.data, "size", n, "brick", b, "lods", ds.LODCount(), "codec", codec.String())
	return nil
}

func verify(ctx context.Context, path string, log *slog.Logger) error {
	f, err := volume.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()
	start := time.Now()
	err = volume.Verify(ctx, f, volume.VerifyOptions{
		Progress: func(done, total int) {
			if done == total {
				log.Debug("volview: bricks verified", "count", total)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	log.Info("volview: dataset verified", "path", path, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// openViews creates the render contexts. The first one owns the transfer
// functions; the others share them.
func openViews(mm *gpumem.Manager, cfg config.Config, o options, log *slog.Logger) ([]*render.Context, error) {
	var views []*render.Context
	for i := 0; i < max(o.views, 1); i++ {
		s, err := render.NewStrategy(cfg.Render.Strategy)
		if err != nil {
			return views, err
		}
		v := render.New(mm, s,
			render.WithLogger(log),
			render.WithViewport(cfg.Render.Width, cfg.Render.Height),
			render.WithBlendPrecision(render.BlendPrecision(cfg.Render.BlendPrecision)),
			render.WithLogo(cfg.Render.Logo),
			render.WithOverlays(cfg.Render.Overlays...),
			render.WithLighting(cfg.Render.Lighting),
			render.WithPresenter(framePresenter(log, i)),
		)
		views = append(views, v)
		if err := v.Initialize(); err != nil {
			return views, err
		}
		if err := v.LoadDataset(o.data); err != nil {
			return views, err
		}
		if i == 0 {
			if o.tf != "" {
				if err := v.Load1DTransferFunction(o.tf); err != nil {
					return views, err
				}
			}
			continue
		}
		if err := v.Share1DTransferFunction(views[0].TransferFunction1D()); err != nil {
			return views, err
		}
		if err := v.Share2DTransferFunction(views[0].TransferFunction2D()); err != nil {
			return views, err
		}
	}
	return views, nil
}

// paint refines every view until all of them are complete or ctx is
// cancelled.
func paint(ctx context.Context, views []*render.Context) error {
	for {
		busy := false
		for _, v := range views {
			if !v.CheckForRedraw() {
				continue
			}
			busy = true
			if err := v.Paint(); err != nil {
				return err
			}
		}
		if !busy {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func framePresenter(log *slog.Logger, view int) render.Presenter {
	return render.PresenterFunc(func(f render.Frame) error {
		if f.Slice != nil {
			log.Info("volview: slice",
				"view", view,
				"slice", f.Slice.String(),
				"bricks", f.Pass.Drawn,
				"skipped", f.Pass.Skipped,
			)
			return nil
		}
		log.Info("volview: frame",
			"view", view,
			"lod", f.LOD,
			"complete", f.Complete,
			"lit", f.Pass.Lit,
			"overlays", len(f.Overlays),
			"bricks", f.Pass.Drawn,
			"skipped", f.Pass.Skipped,
			"samples", f.Pass.Samples,
		)
		return nil
	})
}
