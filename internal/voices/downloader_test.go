package voices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestDownloaderInstall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload:" + filepath.Base(r.URL.Path)))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := &Downloader{BaseURL: srv.URL, Dir: dir}
	av := Available{
		Voice: Voice{ID: "hi_IN-pratham-medium"},
		Files: []string{"hi_IN-pratham-medium.onnx", "hi_IN-pratham-medium.onnx.json"},
	}
	if err := d.Install(context.Background(), av); err != nil {
		t.Fatalf("Install: %v", err)
	}
	for _, f := range av.Files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			t.Fatalf("missing %s: %v", f, err)
		}
		if string(data) != "payload:"+f {
			t.Fatalf("%s content = %q", f, data)
		}
	}
}

func TestDownloaderRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := &Downloader{BaseURL: srv.URL, Dir: t.TempDir()}
	if err := d.fetchFile(context.Background(), "v.onnx"); err != nil {
		t.Fatalf("fetchFile: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want 2", hits.Load())
	}
}

func TestDownloaderGivesUpOnPermanentStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := &Downloader{BaseURL: srv.URL, Dir: t.TempDir()}
	if err := d.fetchFile(context.Background(), "v.onnx"); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
}

func TestDownloaderInstallCleansUpOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if filepath.Ext(r.URL.Path) == ".json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("model"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := &Downloader{BaseURL: srv.URL, Dir: dir}
	av := Available{
		Voice: Voice{ID: "ta_IN-anbu-low"},
		Files: []string{"ta_IN-anbu-low.onnx", "ta_IN-anbu-low.onnx.json"},
	}
	if err := d.Install(context.Background(), av); err == nil {
		t.Fatal("expected install error")
	}
	if _, err := os.Stat(filepath.Join(dir, "ta_IN-anbu-low.onnx")); !os.IsNotExist(err) {
		t.Fatal("partial install left the model behind")
	}
}
