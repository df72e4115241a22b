// Command normalview renders the bundled compute-then-render programs
// headless and saves the last presented frame.
//
// Usage:
//
//	normalview -program normalmap -heightmap rocks.png -strength 2 -output normals.png
//	normalview -program raytrace -compute -frames 3 -output gradient.png
//	normalview -emit msl -program normalmap
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/computeview"
	"github.com/gogpu/computeview/backend"
	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/shader"
	"github.com/gogpu/computeview/surface"

	_ "github.com/gogpu/computeview/backend/native"
	_ "github.com/gogpu/computeview/backend/software"
)

func main() {
	var (
		width     = flag.Int("width", 512, "surface width")
		height    = flag.Int("height", 512, "surface height")
		program   = flag.String("program", "normalmap", "program to run: normalmap or raytrace")
		heightmap = flag.String("heightmap", "", "heightmap image (png, bmp, tiff, webp); procedural when empty")
		strength  = flag.Float64("strength", computeview.DefaultStrength, "normal strength, or gradient blue for raytrace; unset keeps the program's own default")
		compute   = flag.Bool("compute", false, "enable the compute pass of the raytrace program")
		frames    = flag.Int("frames", 1, "frames to render")
		samples   = flag.Int("samples", 1, "surface sample count (1 or 4)")
		backendN  = flag.String("backend", "", "device backend; empty picks the best available")
		output    = flag.String("output", "normalview.png", "output PNG file")
		caption   = flag.Bool("caption", true, "draw a caption onto the saved frame")
		emit      = flag.String("emit", "", "print the program translated to msl, glsl or spirv and exit")
		verbose   = flag.Bool("v", false, "log debug output to stderr")
	)
	flag.Parse()

	if *verbose {
		computeview.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	prog, err := lookupProgram(*program)
	if err != nil {
		log.Fatal(err)
	}
	if *emit != "" {
		if err := emitProgram(os.Stdout, prog, *emit); err != nil {
			log.Fatalf("emit %s: %v", *emit, err)
		}
		return
	}

	dev, name, err := openDevice(*backendN)
	if err != nil {
		log.Fatalf("open device: %v", err)
	}
	defer func() { _ = dev.Close() }()
	log.Printf("using %s device %q", name, dev.Name())

	dest, err := surface.NewOffscreen(dev, *width, *height, surface.WithSampleCount(*samples))
	if err != nil {
		log.Fatalf("create surface: %v", err)
	}
	defer func() { _ = dest.Close() }()

	r, err := newRenderer(dev, dest, prog, *heightmap, strengthOptions(flag.CommandLine, *strength), *compute)
	if err != nil {
		var cfg *computeview.ConfigError
		if errors.As(err, &cfg) {
			log.Fatalf("configuration error: %v", cfg)
		}
		log.Fatalf("create renderer: %v", err)
	}
	defer func() { _ = r.Close() }()

	for range *frames {
		if err := dest.Draw(r); err != nil {
			log.Fatalf("frame %d: %v", r.Frames(), err)
		}
	}
	if err := dev.WaitIdle(); err != nil {
		log.Fatalf("wait for device: %v", err)
	}

	img := dest.LastPresented()
	if img == nil {
		log.Fatal("no frame was presented")
	}
	if *caption {
		label := fmt.Sprintf("%s  %s  strength %.3g  %d frames", prog.Name, dev.Name(), r.Strength(), r.Frames())
		if err := drawCaption(img, label); err != nil {
			log.Printf("caption skipped: %v", err)
		}
	}
	if err := savePNG(*output, img); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Frame saved to %s (%dx%d)\n", *output, img.Bounds().Dx(), img.Bounds().Dy())
}

func lookupProgram(name string) (shader.Program, error) {
	switch name {
	case "normalmap":
		return shader.NormalMapProgram(), nil
	case "raytrace":
		return shader.RaytraceProgram(), nil
	default:
		return shader.Program{}, fmt.Errorf("unknown program %q (want normalmap or raytrace)", name)
	}
}

func openDevice(name string) (gpucore.Device, string, error) {
	if name == "" {
		return backend.Default()
	}
	dev, err := backend.Open(name)
	return dev, name, err
}

// strengthOptions returns WithStrength(strength) when -strength was given
// on fs, and nothing otherwise.
func strengthOptions(fs *flag.FlagSet, strength float64) []computeview.OrchestratorOption {
	var set bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "strength" {
			set = true
		}
	})
	if !set {
		return nil
	}
	return []computeview.OrchestratorOption{computeview.WithStrength(float32(strength))}
}

func newRenderer(dev gpucore.Device, dest *surface.Offscreen, prog shader.Program, heightmapPath string,
	opts []computeview.OrchestratorOption, compute bool) (*computeview.Renderer, error) {
	if prog.Name == "raytrace" {
		w, h := dest.Size()
		opts = append(opts, computeview.WithComputeEnabled(compute))
		return computeview.NewRaytraceRenderer(dev, dest, w, h, opts...)
	}

	var hm image.Image
	if heightmapPath != "" {
		img, err := loadImage(heightmapPath)
		if err != nil {
			return nil, err
		}
		hm = img
	} else {
		w, h := dest.Size()
		hm = proceduralHeightmap(w, h)
	}
	return computeview.NewNormalMapRenderer(dev, dest, hm, opts...)
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
