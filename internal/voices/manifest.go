package voices

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vaanilabs/vaani/internal/observability"
	"github.com/vaanilabs/vaani/internal/reliability"
)

// Available describes a voice offered by the download server.
type Available struct {
	Voice
	Files []string `json:"files"`
}

// ParseManifest reads the server's pipe-separated file list and groups it
// into downloadable voices. A voice needs both its model and config file;
// a .zip with the same stem rides along as extra data.
func ParseManifest(body string) []Available {
	models := make(map[string]bool)
	configs := make(map[string]bool)
	extras := make(map[string]string)
	for _, f := range strings.Split(body, "|") {
		f = strings.TrimSpace(f)
		switch {
		case strings.HasSuffix(f, ".onnx.json"):
			configs[strings.TrimSuffix(f, ".onnx.json")] = true
		case strings.HasSuffix(f, ".onnx"):
			models[strings.TrimSuffix(f, ".onnx")] = true
		case strings.HasSuffix(f, ".zip"):
			extras[strings.TrimSuffix(f, ".zip")] = f
		}
	}

	ids := make([]string, 0, len(models))
	for id := range models {
		if configs[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]Available, 0, len(ids))
	for _, id := range ids {
		v, err := ParseID(id)
		if err != nil {
			continue
		}
		files := []string{id + ".onnx", id + ".onnx.json"}
		if extra, ok := extras[id]; ok {
			files = append(files, extra)
		}
		out = append(out, Available{Voice: v, Files: files})
	}
	return out
}

// Downloader fetches voice files from the catalog server into the voices
// directory. Downloads write to a temp file and rename into place so a
// cancelled or failed fetch never leaves a half-written model behind.
type Downloader struct {
	BaseURL     string
	ManifestURL string
	Dir         string
	Client      *http.Client
	Metrics     *observability.Metrics
	// Progress, when set, receives (file, received, total) as bytes
	// arrive. Total is -1 when the server does not report a length.
	Progress func(file string, received, total int64)
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: 10 * time.Minute}
}

// FetchManifest downloads and parses the available-voice list.
func (d *Downloader) FetchManifest(ctx context.Context) ([]Available, error) {
	if strings.TrimSpace(d.ManifestURL) == "" {
		return nil, fmt.Errorf("voices: manifest URL not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.ManifestURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := d.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch manifest: status %d", res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(string(body)), nil
}

// Install downloads every file of one available voice. On any failure the
// files fetched so far for this voice are removed.
func (d *Downloader) Install(ctx context.Context, av Available) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create voices dir: %w", err)
	}
	var done []string
	for _, file := range av.Files {
		if err := d.fetchFile(ctx, file); err != nil {
			for _, f := range done {
				_ = os.Remove(filepath.Join(d.Dir, f))
			}
			d.count("failed")
			return err
		}
		done = append(done, file)
	}
	d.count("completed")
	return nil
}

const fetchAttempts = 3

// fetchFile downloads one voice file, retrying transient failures with
// capped backoff.
func (d *Downloader) fetchFile(ctx context.Context, file string) error {
	var err error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt, 500*time.Millisecond, 5*time.Second)):
			}
		}
		var retryable bool
		retryable, err = d.fetchFileOnce(ctx, file)
		if err == nil || !retryable {
			return err
		}
	}
	return err
}

func (d *Downloader) fetchFileOnce(ctx context.Context, file string) (retryable bool, _ error) {
	url := strings.TrimRight(d.BaseURL, "/") + "/" + file
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	res, err := d.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			d.count("cancelled")
			return false, ctx.Err()
		}
		return true, fmt.Errorf("download %s: %w", file, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("download %s: status %d", file, res.StatusCode)
	}

	tmp, err := os.CreateTemp(d.Dir, "."+file+".part-*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())

	total := res.ContentLength
	var received int64
	buf := make([]byte, 8192)
	for {
		n, rerr := res.Body.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				return false, fmt.Errorf("write %s: %w", file, werr)
			}
			received += int64(n)
			if d.Progress != nil {
				d.Progress(file, received, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			tmp.Close()
			if ctx.Err() != nil {
				d.count("cancelled")
				return false, ctx.Err()
			}
			return true, fmt.Errorf("download %s: %w", file, rerr)
		}
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	return false, os.Rename(tmp.Name(), filepath.Join(d.Dir, file))
}

func (d *Downloader) count(outcome string) {
	if d.Metrics != nil {
		d.Metrics.Downloads.WithLabelValues(outcome).Inc()
	}
}
