// Package config reads the transcoder options from the host configuration.
// Parsing is lenient: malformed documents yield the defaults and out of
// range values are ignored one by one.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jpfielding/dcmjxl.go/pkg/codec"
)

// Section is the key of the transcoder options in the host configuration
const Section = "OrthancJxl"

// Config holds the encode options of the native to JPEG XL direction
type Config struct {
	Mode                codec.EncodeMode
	Effort              int
	Distance            float32
	CenterFirstOrdering bool
	ProgressiveDC       int
	ProgressiveAC       bool
	// CenterX and CenterY override the image center, -1 is auto
	CenterX int
	CenterY int
}

// Default returns progressive lossless coding at effort 7, centered
func Default() Config {
	return Config{
		Mode:                codec.ModeProgressiveLossless,
		Effort:              codec.DefaultEffort,
		Distance:            0,
		CenterFirstOrdering: true,
		ProgressiveDC:       0,
		ProgressiveAC:       false,
		CenterX:             codec.CenterAuto,
		CenterY:             codec.CenterAuto,
	}
}

// section mirrors the accepted keys; pointers tell absent from zero
type section struct {
	Mode                *string  `yaml:"Mode"`
	Effort              *int     `yaml:"Effort"`
	Distance            *float64 `yaml:"Distance"`
	CenterFirstOrdering *bool    `yaml:"CenterFirstOrdering"`
	ProgressiveDC       *int     `yaml:"ProgressiveDC"`
	ProgressiveAC       *bool    `yaml:"ProgressiveAC"`
	CenterX             *int     `yaml:"CenterX"`
	CenterY             *int     `yaml:"CenterY"`
}

type document struct {
	Section *section `yaml:"OrthancJxl"`
}

// Parse reads the OrthancJxl section of a JSON or YAML document. It never
// fails: anything unreadable gives Default().
func Parse(data []byte) Config {
	cfg, err := parse(data)
	if err != nil {
		return Default()
	}
	return cfg
}

func parse(data []byte) (Config, error) {
	cfg := Default()
	data = StripComments(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cfg, fmt.Errorf("failed to parse configuration: %v", err)
	}
	s := doc.Section
	if s == nil {
		return cfg, nil
	}
	if s.Mode != nil {
		if m, ok := codec.ParseMode(*s.Mode); ok {
			cfg.Mode = m
		}
	}
	if s.Effort != nil && *s.Effort >= codec.MinEffort && *s.Effort <= codec.MaxEffort {
		cfg.Effort = *s.Effort
	}
	if s.Distance != nil && *s.Distance >= 0 && *s.Distance <= codec.MaxDistance {
		cfg.Distance = float32(*s.Distance)
	}
	if s.CenterFirstOrdering != nil {
		cfg.CenterFirstOrdering = *s.CenterFirstOrdering
	}
	if s.ProgressiveDC != nil && *s.ProgressiveDC >= 0 && *s.ProgressiveDC <= 2 {
		cfg.ProgressiveDC = *s.ProgressiveDC
	}
	if s.ProgressiveAC != nil {
		cfg.ProgressiveAC = *s.ProgressiveAC
	}
	if s.CenterX != nil && *s.CenterX >= codec.CenterAuto {
		cfg.CenterX = *s.CenterX
	}
	if s.CenterY != nil && *s.CenterY >= codec.CenterAuto {
		cfg.CenterY = *s.CenterY
	}
	return cfg, nil
}

// LoadFile reads and parses a configuration file. Only a read failure is
// an error; the content is parsed leniently.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("failed to read config %s: %v", path, err)
	}
	return Parse(data), nil
}

// EncodeOptions returns the codec options for a width x height image.
// With center-first ordering and no explicit center, the center is the
// geometric center of the image.
func (c Config) EncodeOptions(width, height int) codec.EncodeOptions {
	cx, cy := codec.CenterAuto, codec.CenterAuto
	if c.CenterFirstOrdering {
		cx, cy = width/2, height/2
		if c.CenterX >= 0 {
			cx = c.CenterX
		}
		if c.CenterY >= 0 {
			cy = c.CenterY
		}
	}
	switch c.Mode {
	case codec.ModeLossless:
		return codec.Lossless(c.Effort)
	case codec.ModeProgressiveVarDCT:
		return codec.ProgressiveVarDCT(c.Effort, c.Distance, c.ProgressiveDC, c.ProgressiveAC, cx, cy)
	default:
		return codec.ProgressiveLossless(c.Effort, cx, cy)
	}
}

// IsLossy reports whether the configured mode discards information
func (c Config) IsLossy() bool {
	return c.Mode == codec.ModeProgressiveVarDCT && c.Distance > 0
}

// StripComments removes // line and /* */ block comments outside of
// string literals, the JSON extension the host accepts. Tabs outside of
// strings become spaces so the YAML parser accepts tab indented JSON.
func StripComments(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		ch := data[i]
		if inString {
			out = append(out, ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch {
		case ch == '"':
			inString = true
			out = append(out, ch)
		case ch == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case ch == '/' && i+1 < len(data) && data[i+1] == '*':
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				if data[i] == '\n' {
					out = append(out, '\n')
				}
				i++
			}
			i++
		case ch == '\t':
			out = append(out, ' ')
		default:
			out = append(out, ch)
		}
	}
	return out
}
