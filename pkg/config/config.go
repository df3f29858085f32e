// Package config loads pipeline settings from CUE files. Every field has a
// default in the schema, so an empty file list yields the built-in settings.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

const schemaSrc = `
// distance between generated guide locators
spacing: number & >0 | *2.0

volume: {
	variation: number & >=0 & <=1 | *1.0
	minimum:   number & >0 | *0.01
	maximum:   number & >0 | *1e6
}

// default side name pair for mirrored modules
sides: [string, string] | *["L", "R"]

proxy: {
	cells: int & >0 | *12
	size:  number & >0 | *0.5
}

detail:      "simple" | *"complete"
evalTimeout: string | *"5s"
`

// Settings are the tunable pipeline parameters.
type Settings struct {
	Spacing     float64  `json:"spacing"`
	Volume      Volume   `json:"volume"`
	Sides       []string `json:"sides"`
	Proxy       Proxy    `json:"proxy"`
	Detail      string   `json:"detail"`
	EvalTimeout string   `json:"evalTimeout"`
}

// Volume tunes the volume-preservation network.
type Volume struct {
	Variation float64 `json:"variation"`
	Minimum   float64 `json:"minimum"`
	Maximum   float64 `json:"maximum"`
}

// Proxy tunes preview proxy tessellation.
type Proxy struct {
	Cells int     `json:"cells"`
	Size  float64 `json:"size"`
}

// Timeout parses EvalTimeout, falling back to five seconds.
func (s Settings) Timeout() time.Duration {
	d, err := time.ParseDuration(s.EvalTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Loader reads settings once and caches the result.
type Loader struct {
	load func() (Settings, error)
}

// NewLoader returns a Loader unifying the schema with every file in order.
func NewLoader(filePaths ...string) Loader {
	return Loader{
		load: sync.OnceValues(func() (Settings, error) {
			ctx := cuecontext.New()
			schema := ctx.CompileString("close({"+schemaSrc+"})", cue.Filename("schema.cue"))
			if err := schema.Err(); err != nil {
				return Settings{}, err
			}

			value := schema
			for _, filePath := range filePaths {
				content, err := os.ReadFile(filePath)
				if err != nil {
					return Settings{}, err
				}
				file := ctx.CompileBytes(content, cue.Filename(filePath))
				if err := file.Err(); err != nil {
					return Settings{}, err
				}
				value = value.Unify(file)
				if err := value.Validate(); err != nil {
					return Settings{}, fmt.Errorf("config %s: %w", filePath, err)
				}
			}

			var s Settings
			if err := value.Decode(&s); err != nil {
				return Settings{}, err
			}
			if s.Volume.Minimum >= s.Volume.Maximum {
				return Settings{}, fmt.Errorf("config: volume minimum %g must be below maximum %g", s.Volume.Minimum, s.Volume.Maximum)
			}
			return s, nil
		}),
	}
}

// Settings returns the loaded settings.
func (l Loader) Settings() (Settings, error) {
	return l.load()
}

// Load is shorthand for NewLoader(filePaths...).Settings().
func Load(filePaths ...string) (Settings, error) {
	return NewLoader(filePaths...).Settings()
}

var defaults = NewLoader()

// Default returns the built-in settings.
func Default() Settings {
	s, err := defaults.Settings()
	if err != nil {
		panic(err)
	}
	return s
}
