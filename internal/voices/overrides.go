package voices

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Override carries per-voice tuning data keyed by voice id. Vendor models
// that need a specific speaker slot or ship with a mislabelled quality
// tier get fixed here instead of in code.
type Override struct {
	// Speaker selects a speaker slot in multi-speaker models. Zero means
	// the model default.
	Speaker int `yaml:"speaker"`
	// Quality overrides the quality tier parsed from the voice id.
	Quality string `yaml:"quality,omitempty"`
	// LengthScaleTrim is added to the computed length scale, for voices
	// trained noticeably faster or slower than their peers.
	LengthScaleTrim float64 `yaml:"length_scale_trim,omitempty"`
}

// Overrides maps voice id to its tuning entry.
type Overrides map[string]Override

// LoadOverrides reads the yaml overrides file. A missing file is fine and
// yields an empty map.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Overrides{}, nil
		}
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	var out Overrides
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	if out == nil {
		out = Overrides{}
	}
	return out, nil
}

// Apply folds an override into a parsed voice.
func (o Overrides) Apply(v Voice) Voice {
	ov, ok := o[v.ID]
	if !ok {
		return v
	}
	if ov.Quality != "" {
		v.Quality = ov.Quality
		if rate, ok := qualityRates[ov.Quality]; ok {
			v.SampleRate = rate
		}
	}
	return v
}

// Speaker returns the speaker slot configured for a voice, zero when
// unset.
func (o Overrides) Speaker(id string) int {
	return o[id].Speaker
}

// LengthScaleTrim returns the length-scale adjustment for a voice.
func (o Overrides) LengthScaleTrim(id string) float64 {
	return o[id].LengthScaleTrim
}
