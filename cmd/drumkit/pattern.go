package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/drumengine/drum/sequencer"
	"github.com/cwbudde/drumengine/drum/sound"
)

var defaultBeat = []struct {
	drumType string
	steps    string
}{
	{"kick", "x...x...x...x..."},
	{"snare", "....x.......x..."},
	{"hihat", "x.x.x.x.x.x.x.x."},
}

// buildPattern turns track=steps arguments into tracks and a pattern.
// Without arguments it lays the default beat over the first sound of each
// matching drum type.
func buildPattern(defs []sound.Definition, args []string) ([]sequencer.Track, sequencer.Pattern, error) {
	type row struct {
		key   string
		steps string
	}
	var rows []row

	if len(args) == 0 {
		for _, b := range defaultBeat {
			for _, d := range defs {
				if strings.EqualFold(d.DrumType, b.drumType) {
					rows = append(rows, row{key: d.Key(), steps: b.steps})
					break
				}
			}
		}
		if len(rows) == 0 {
			return nil, nil, errors.New("no kick, snare or hihat in the catalog; pass track=pattern arguments")
		}
	}

	for _, arg := range args {
		key, steps, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, nil, fmt.Errorf("track %q: want name=pattern", arg)
		}
		if !known(defs, key) {
			return nil, nil, fmt.Errorf("track %q: unknown sound (use -list)", key)
		}
		if len(steps) != sequencer.Steps {
			return nil, nil, fmt.Errorf("track %q: pattern has %d steps, want %d", key, len(steps), sequencer.Steps)
		}
		rows = append(rows, row{key: key, steps: steps})
	}

	tracks := make([]sequencer.Track, len(rows))
	pattern := sequencer.NewPattern(len(rows))
	for i, r := range rows {
		tracks[i] = sequencer.NewTrack(r.key)
		for step, c := range r.steps {
			if c == 'x' || c == 'X' {
				pattern.Toggle(i, step)
			}
		}
	}
	return tracks, pattern, nil
}

func known(defs []sound.Definition, key string) bool {
	for _, d := range defs {
		if d.Key() == key || strings.EqualFold(d.Name, key) {
			return true
		}
	}
	return false
}
