// Package voices manages the installed voice model catalog: scanning the
// data directory for models, parsing voice identifiers, and resolving the
// display language for each voice.
package voices

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var ErrNotInstalled = errors.New("voices: voice not installed")

// langNames maps the two-letter language code embedded in a voice id to
// its display name. Codes outside this table render as "Unknown language".
var langNames = map[string]string{
	"as": "Assamese",
	"bn": "Bengali",
	"gu": "Gujarati",
	"hi": "Hindi",
	"kn": "Kannada",
	"ml": "Malayalam",
	"mr": "Marathi",
	"ne": "Nepali",
	"or": "Odia",
	"pa": "Punjabi",
	"sa": "Sanskrit",
	"si": "Sinhala",
	"ta": "Tamil",
	"te": "Telugu",
	"en": "English",
}

// LanguageName resolves a display name for a language code.
func LanguageName(iso string) string {
	if name, ok := langNames[strings.ToLower(iso)]; ok {
		return name
	}
	return fmt.Sprintf("Unknown language (%s)", iso)
}

// qualityRates maps the quality suffix of a voice id to the model's
// output sample rate.
var qualityRates = map[string]int{
	"low":    16000,
	"med":    22050,
	"medium": 22050,
	"high":   22050,
}

// Voice describes one installed voice model.
type Voice struct {
	ID         string `json:"id"`
	LangISO    string `json:"lang"`
	Region     string `json:"region,omitempty"`
	Name       string `json:"name"`
	Quality    string `json:"quality"`
	Language   string `json:"language"`
	SampleRate int    `json:"sample_rate"`
	ModelPath  string `json:"-"`
}

// ParseID decodes a voice identifier of the form
// <lang>[_REGION]-<name>-<quality>, e.g. "hi_IN-pratham-medium".
func ParseID(id string) (Voice, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Voice{}, fmt.Errorf("voices: empty voice id")
	}
	parts := strings.Split(id, "-")
	locale := parts[0]
	lang, region, _ := strings.Cut(locale, "_")
	lang = strings.ToLower(lang)

	v := Voice{
		ID:       id,
		LangISO:  lang,
		Region:   region,
		Quality:  parts[len(parts)-1],
		Language: LanguageName(lang),
	}
	if len(parts) >= 3 {
		v.Name = strings.Join(parts[1:len(parts)-1], "-")
	} else if len(parts) == 2 {
		v.Name = parts[1]
	}
	if rate, ok := qualityRates[strings.ToLower(v.Quality)]; ok {
		v.SampleRate = rate
	} else {
		v.SampleRate = 22050
	}
	return v, nil
}

// Catalog is the set of installed voices, populated by scanning a
// directory for .onnx models with .json companions. One voice is kept per
// language (the last alphabetically), matching how the voice manager
// prunes duplicates after updates.
type Catalog struct {
	dir string

	mu      sync.RWMutex
	byID    map[string]Voice
	byLang  map[string]Voice
	english Voice
}

// NewCatalog scans dir and returns the catalog. A missing directory is
// not an error: it yields an empty catalog that Rescan can fill later.
func NewCatalog(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir}
	if err := c.Rescan(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Dir() string { return c.dir }

// Rescan rebuilds the catalog from the directory contents.
func (c *Catalog) Rescan() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return fmt.Errorf("scan voices dir: %w", err)
		}
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".onnx") {
			continue
		}
		if _, err := os.Stat(filepath.Join(c.dir, name+".json")); err != nil {
			continue // model without config is unusable
		}
		ids = append(ids, strings.TrimSuffix(name, ".onnx"))
	}
	sort.Strings(ids)

	byID := make(map[string]Voice, len(ids))
	byLang := make(map[string]Voice, len(ids))
	var english Voice
	for _, id := range ids {
		v, err := ParseID(id)
		if err != nil {
			continue
		}
		v.ModelPath = filepath.Join(c.dir, id+".onnx")
		byID[v.ID] = v
		// Later alphabetical ids win, one voice per language.
		if v.LangISO == "en" {
			english = v
			continue
		}
		byLang[v.LangISO] = v
	}

	c.mu.Lock()
	c.byID = byID
	c.byLang = byLang
	c.english = english
	c.mu.Unlock()
	return nil
}

// Get looks a voice up by id.
func (c *Catalog) Get(id string) (Voice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.byID[id]
	return v, ok
}

// ByLanguage returns the voice selected for a language code.
func (c *Catalog) ByLanguage(iso string) (Voice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	iso = strings.ToLower(iso)
	if iso == "en" {
		if c.english.ID != "" {
			return c.english, true
		}
		return Voice{}, false
	}
	v, ok := c.byLang[iso]
	return v, ok
}

// English returns the installed English voice, used by the native engine
// to speak delegate-class text when no external delegate is available.
func (c *Catalog) English() (Voice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.english, c.english.ID != ""
}

// List returns the native voices sorted by id. The English voice is the
// delegate default and is excluded here; use English for it.
func (c *Catalog) List() []Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Voice, 0, len(c.byLang))
	for _, v := range c.byLang {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// First returns the alphabetically first native voice, the startup
// default when no voice is configured.
func (c *Catalog) First() (Voice, bool) {
	list := c.List()
	if len(list) == 0 {
		return Voice{}, false
	}
	return list[0], true
}

// Remove deletes every file belonging to a voice id.
func (c *Catalog) Remove(id string) error {
	if _, ok := c.Get(id); !ok {
		return ErrNotInstalled
	}
	matches, err := filepath.Glob(filepath.Join(c.dir, id+"*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return fmt.Errorf("remove %s: %w", filepath.Base(m), err)
		}
	}
	return c.Rescan()
}
