// Command drumkit plays a 16-step pattern through the default audio device.
//
// Usage:
//
//	drumkit [flags] [track=pattern ...]
//
// A track argument names a sound by id or name and gives 16 steps, where
// 'x' or 'X' is a hit and any other character a rest. Without track
// arguments a basic rock beat is built from the sounds' drum types.
//
// Examples:
//
//	drumkit
//	drumkit -bpm 96 -swing 0.4 kick=x.......x.x..... snare=....x.......x...
//	drumkit -catalog http://localhost:8000/api/sounds -list
//	drumkit -catalog kit.json -bars 4
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/drumengine/drum/catalog"
	"github.com/cwbudde/drumengine/drum/engine"
	"github.com/cwbudde/drumengine/drum/sequencer"
	"github.com/cwbudde/drumengine/drum/sound"
)

func main() {
	catalogFlag := flag.String("catalog", "", "sound catalog: JSON file or http(s) URL (default: built-in kit)")
	bpm := flag.Float64("bpm", 120, "tempo in beats per minute")
	bars := flag.Int("bars", 2, "number of 16-step bars to play")
	swing := flag.Float64("swing", 0, "swing amount 0..1")
	list := flag.Bool("list", false, "list the catalog sounds and exit")
	verbose := flag.Bool("v", false, "log debug messages")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: drumkit [flags] [track=pattern ...]\n\n")
		fmt.Fprintf(os.Stderr, "Plays a 16-step drum pattern through the default audio device.\n")
		fmt.Fprintf(os.Stderr, "Environment: DRUMENGINE_SAMPLE_RATE, DRUMENGINE_MASTER_VOLUME (0-100),\n")
		fmt.Fprintf(os.Stderr, "DRUMENGINE_LOOKAHEAD_MS, DRUMENGINE_SAMPLE_DIR, DRUMENGINE_OUTPUT_ENABLED.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  drumkit -bpm 96 kick=x.......x.x..... snare=....x.......x...\n")
		fmt.Fprintf(os.Stderr, "  drumkit -catalog kit.json -list\n")
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger, *catalogFlag, *bpm, *bars, *swing, *list, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, src string, bpm float64, bars int, swing float64, list bool, args []string) error {
	e, err := engine.New(engine.WithConfig(engine.LoadConfig()), engine.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			logger.Warn("engine close failed", "err", err)
		}
	}()

	if _, err := e.LoadCatalog(ctx, source(src)); err != nil {
		return err
	}
	e.Catalog().Wait()

	if list {
		return printSounds(e.GetAllSounds())
	}

	tracks, pattern, err := buildPattern(e.GetAllSounds(), args)
	if err != nil {
		return err
	}

	if err := e.Initialize(ctx); err != nil {
		return err
	}
	s := e.Scheduler()
	s.SetTracks(tracks)
	s.SetSwing(swing)
	if err := s.Start(bpm, pattern); err != nil {
		return err
	}
	defer s.Stop()

	length := time.Duration(float64(bars*sequencer.Steps) * sequencer.Interval(s.BPM()) * float64(time.Second))
	select {
	case <-ctx.Done():
	case <-time.After(length):
	}
	s.Stop()
	// Let the last hits ring out.
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
	}
	return nil
}

func source(src string) catalog.Source {
	switch {
	case src == "":
		return catalog.SourceFunc(func(context.Context) ([]sound.Definition, error) { return builtinKit(), nil })
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return catalog.NewHTTPSource(src)
	default:
		return catalog.FileSource{Path: src}
	}
}

func builtinKit() []sound.Definition {
	kit := []string{"kick", "snare", "hihat", "clap", "tom", "cowbell"}
	defs := make([]sound.Definition, len(kit))
	for i, drumType := range kit {
		defs[i] = sound.Definition{
			ID:       int64(i + 1),
			Name:     drumType,
			DrumType: drumType,
			Mode:     sound.ModeSynthesis,
			Recipe:   sound.DefaultRecipe(drumType),
		}
	}
	return defs
}

func printSounds(defs []sound.Definition) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "ID\tName\tDrum Type\tMode\tSource\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(tw, "--\t----\t---------\t----\t------\n"); err != nil {
		return err
	}
	for _, d := range defs {
		src := d.SampleURI
		if src == "" && d.Recipe != nil {
			src = string(d.Recipe.Kind())
		}
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.DrumType, d.Mode, src); err != nil {
			return err
		}
	}
	return tw.Flush()
}
