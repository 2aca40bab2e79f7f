// Command resize resizes one local image, optionally searching for a
// target file size.
//
//	resize -in photo.jpg -w 10 -h 15 -unit cm -dpi 300 -target 200 -out resized-image.jpg
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"photoresizer/internal/config"
	"photoresizer/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "resize: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("resize", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		in      = fs.String("in", "", "input image (JPEG, PNG, WebP, GIF, BMP or AVIF)")
		out     = fs.String("out", "", "output file (default resized-image.<ext>)")
		width   = fs.Float64("w", 0, "target width in -unit (0 keeps the source width)")
		height  = fs.Float64("h", 0, "target height in -unit (0 keeps the source height)")
		unit    = fs.String("unit", "px", "unit for -w/-h: px, percent, cm or inch")
		dpi     = fs.Float64("dpi", pipeline.DefaultDPI, "dots per inch for cm and inch")
		target  = fs.Float64("target", 0, "target file size in KB (0 disables the size search)")
		quality = fs.Float64("quality", 0, "encoder quality in (0,1] when no -target is given")
		format  = fs.String("format", "jpeg", "output format: jpeg, webp or avif")
		timeout = fs.Duration("timeout", 0, "give up the size search after this long and keep the best result")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return errors.New("-in is required")
	}

	u, err := pipeline.ParseUnit(*unit)
	if err != nil {
		return err
	}
	f, err := pipeline.ParseFormat(*format)
	if err != nil {
		return err
	}

	cfg := config.Load()

	file, err := os.Open(*in)
	if err != nil {
		return err
	}
	src, err := pipeline.Decode(file, cfg.MaxUploadBytes, cfg.MaxDimension)
	file.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", *in, err)
	}

	engine := pipeline.NewEngine(cfg.Pipeline())
	req := engine.FillNatural(src, pipeline.Request{
		Width:    *width,
		Height:   *height,
		Unit:     u,
		DPI:      *dpi,
		TargetKB: *target,
		Quality:  *quality,
		Format:   f,
	})

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := engine.Resize(ctx, src, req)
	switch {
	case err != nil && res != nil && ctx.Err() != nil:
		fmt.Fprintf(stderr, "resize: search stopped early (%v), keeping best result\n", err)
	case err != nil:
		return err
	}

	path := *out
	if path == "" {
		path = res.Filename()
	}
	if err := os.WriteFile(path, res.Data, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s: %dx%d %s %dKB quality=%.2f", path, res.Width, res.Height, res.Format, res.SizeKB, res.Quality)
	if req.TargetKB > 0 {
		fmt.Fprintf(stdout, " target=%gKB iterations=%d converged=%t", req.TargetKB, res.Iterations, res.Converged)
	}
	fmt.Fprintf(stdout, " (%s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}
