package voices

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseID(t *testing.T) {
	cases := []struct {
		id      string
		lang    string
		region  string
		name    string
		quality string
		rate    int
	}{
		{"hi_IN-pratham-medium", "hi", "IN", "pratham", "medium", 22050},
		{"ta-vani-low", "ta", "", "vani", "low", 16000},
		{"en_US-arctic-medium", "en", "US", "arctic", "medium", 22050},
		{"gu_IN-dipal-low", "gu", "IN", "dipal", "low", 16000},
	}
	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			v, err := ParseID(tc.id)
			if err != nil {
				t.Fatalf("ParseID(%q) error: %v", tc.id, err)
			}
			if v.LangISO != tc.lang || v.Region != tc.region || v.Name != tc.name || v.Quality != tc.quality {
				t.Fatalf("ParseID(%q) = %+v", tc.id, v)
			}
			if v.SampleRate != tc.rate {
				t.Fatalf("ParseID(%q) rate = %d, want %d", tc.id, v.SampleRate, tc.rate)
			}
		})
	}

	if _, err := ParseID(""); err == nil {
		t.Fatal("ParseID(\"\") should fail")
	}
}

func TestLanguageName(t *testing.T) {
	if got := LanguageName("or"); got != "Odia" {
		t.Fatalf("LanguageName(or) = %q", got)
	}
	if got := LanguageName("xx"); got != "Unknown language (xx)" {
		t.Fatalf("LanguageName(xx) = %q", got)
	}
}

func writeVoiceFiles(t *testing.T, dir string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		for _, suffix := range []string{".onnx", ".onnx.json"} {
			if err := os.WriteFile(filepath.Join(dir, id+suffix), []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestCatalogScanAndDedupe(t *testing.T) {
	dir := t.TempDir()
	writeVoiceFiles(t, dir,
		"hi_IN-old-low",
		"hi_IN-pratham-medium",
		"ta_IN-vani-medium",
		"en_US-arctic-medium",
	)
	// Model without a config companion must be skipped.
	if err := os.WriteFile(filepath.Join(dir, "kn_IN-broken-low.onnx"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := NewCatalog(dir)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	list := cat.List()
	if len(list) != 2 {
		t.Fatalf("List() = %d voices, want 2: %+v", len(list), list)
	}

	// Last alphabetical voice per language wins.
	hi, ok := cat.ByLanguage("hi")
	if !ok || hi.ID != "hi_IN-pratham-medium" {
		t.Fatalf("ByLanguage(hi) = %+v, %t", hi, ok)
	}
	if _, ok := cat.Get("hi_IN-old-low"); !ok {
		t.Fatal("superseded voice should still resolve by id")
	}
	if _, ok := cat.Get("kn_IN-broken-low"); ok {
		t.Fatal("model without config should not be catalogued")
	}

	eng, ok := cat.English()
	if !ok || eng.ID != "en_US-arctic-medium" {
		t.Fatalf("English() = %+v, %t", eng, ok)
	}
	for _, v := range list {
		if v.LangISO == "en" {
			t.Fatal("English voice must not appear in the native list")
		}
	}
}

func TestCatalogMissingDir(t *testing.T) {
	cat, err := NewCatalog(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("NewCatalog on missing dir: %v", err)
	}
	if got := len(cat.List()); got != 0 {
		t.Fatalf("List() = %d voices, want 0", got)
	}
}

func TestCatalogRemove(t *testing.T) {
	dir := t.TempDir()
	writeVoiceFiles(t, dir, "hi_IN-pratham-medium")

	cat, err := NewCatalog(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := cat.Remove("hi_IN-pratham-medium"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := cat.Get("hi_IN-pratham-medium"); ok {
		t.Fatal("voice still catalogued after Remove")
	}
	if err := cat.Remove("hi_IN-pratham-medium"); err != ErrNotInstalled {
		t.Fatalf("Remove twice = %v, want ErrNotInstalled", err)
	}
}

func TestParseManifest(t *testing.T) {
	body := "hi_IN-pratham-medium.onnx|hi_IN-pratham-medium.onnx.json|" +
		"hi_IN-pratham-medium.zip|ta_IN-vani-low.onnx|or_IN-lonely.onnx.json"
	got := ParseManifest(body)
	if len(got) != 1 {
		t.Fatalf("ParseManifest = %d voices, want 1: %+v", len(got), got)
	}
	av := got[0]
	if av.ID != "hi_IN-pratham-medium" {
		t.Fatalf("available voice = %q", av.ID)
	}
	if len(av.Files) != 3 {
		t.Fatalf("files = %v, want model+config+zip", av.Files)
	}
}

func TestOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice-overrides.yaml")
	data := "gu_IN-dipal-medium:\n  speaker: 2\npa_IN-amar-low:\n  speaker: 1\n  quality: medium\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	ov, err := LoadOverrides(path)
	if err != nil {
		t.Fatalf("LoadOverrides: %v", err)
	}
	if got := ov.Speaker("gu_IN-dipal-medium"); got != 2 {
		t.Fatalf("Speaker = %d, want 2", got)
	}
	if got := ov.Speaker("hi_IN-pratham-medium"); got != 0 {
		t.Fatalf("Speaker for unlisted voice = %d, want 0", got)
	}

	v, _ := ParseID("pa_IN-amar-low")
	v = ov.Apply(v)
	if v.Quality != "medium" || v.SampleRate != 22050 {
		t.Fatalf("Apply() = quality %q rate %d", v.Quality, v.SampleRate)
	}

	empty, err := LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil || len(empty) != 0 {
		t.Fatalf("LoadOverrides(missing) = %v, %v", empty, err)
	}
}
