// Package app assembles the speech service: engine, splitter, sinks,
// delegate, dispatcher, journal and the HTTP surface, wired per config.
package app

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/vaanilabs/vaani/internal/audio"
	"github.com/vaanilabs/vaani/internal/config"
	"github.com/vaanilabs/vaani/internal/delegate"
	"github.com/vaanilabs/vaani/internal/dispatch"
	"github.com/vaanilabs/vaani/internal/engine"
	"github.com/vaanilabs/vaani/internal/httpapi"
	"github.com/vaanilabs/vaani/internal/journal"
	"github.com/vaanilabs/vaani/internal/observability"
	"github.com/vaanilabs/vaani/internal/script"
	"github.com/vaanilabs/vaani/internal/session"
	"github.com/vaanilabs/vaani/internal/speech"
	"github.com/vaanilabs/vaani/internal/synth"
	"github.com/vaanilabs/vaani/internal/taskq"
	"github.com/vaanilabs/vaani/internal/voices"
)

// VoiceInfo reports what the build resolved for startup logging.
type VoiceInfo struct {
	ID         string
	Language   string
	SampleRate int
	English    string
	Delegate   string
	Journal    string
}

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Sessions   *session.Manager
	Dispatcher *dispatch.Dispatcher
	Native     *synth.Backend
	Metrics    *observability.Metrics
	Voice      VoiceInfo

	// Cleanup releases external resources (engine process, journal DB,
	// audio sinks) and should run on shutdown.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, journalKind, err := journal.NewStore(ctx, cfg.JournalMode, cfg.DatabaseURL, cfg.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("journal init failed: %w", err)
	}

	catalog, err := voices.NewCatalog(cfg.VoicesDir())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("voice catalog init failed: %w", err)
	}
	overrides, err := voices.LoadOverrides(cfg.OverridesFile)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("voice overrides load failed: %w", err)
	}

	eng := buildEngine(cfg)
	q := taskq.New(128, metrics)

	hub := httpapi.NewAudioHub()
	var dispatcher *dispatch.Dispatcher
	coord := audio.NewCoordinator(audio.Config{
		NativeEmit:   hub.NativeEmit,
		DelegateEmit: hub.DelegateEmit,
		OnDrained:    func() { dispatcher.OnDrained() },
		Metrics:      metrics,
	})
	hub.SetCoordinator(coord)

	splitter := speech.NewSplitter(script.Devanagari)
	sessions := session.NewManager(cfg.SessionTimeout, cfg.SessionRetention)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	native := synth.NewBackend(synth.BackendConfig{
		Engine:      eng,
		Queue:       q,
		Catalog:     catalog,
		Overrides:   overrides,
		Coordinator: coord,
		Metrics:     metrics,
		OnVoice: func(_ voices.Voice, home script.Script) {
			splitter.SetHome(home)
		},
	})

	feed := func(pcm []byte, rate int) bool { return dispatcher.Feed(pcm, rate) }
	deleg, delegName := buildDelegate(cfg, feed)

	dispatcher = dispatch.New(dispatch.Config{
		Splitter:    splitter,
		Native:      native,
		Delegate:    deleg,
		Coordinator: coord,
		Queue:       q,
		Journal:     store,
		JournalText: cfg.JournalText,
		Metrics:     metrics,
	})

	if err := eng.Init(cfg.DataDir, dispatcher.EngineCallbacks()); err != nil {
		q.Close()
		_ = coord.Close()
		_ = store.Close()
		return nil, fmt.Errorf("engine init failed: %w", err)
	}

	voiceID := cfg.Voice
	if voiceID == "" {
		if v, ok := catalog.First(); ok {
			voiceID = v.ID
		}
	}
	if voiceID != "" {
		native.SetVoice(voiceID)
	}
	native.SetRate(cfg.Rate)
	native.SetVolume(cfg.Volume)
	native.SetPitch(cfg.Pitch)
	englishLoaded := native.InitEnglishVoice()

	if deleg != nil && cfg.DelegateVoice != "" {
		s := deleg.Settings()
		s.Voice = cfg.DelegateVoice
		deleg.Apply(s)
	}

	downloader := &voices.Downloader{
		BaseURL:     cfg.VoicesBaseURL,
		ManifestURL: cfg.VoicesManifestURL,
		Dir:         cfg.VoicesDir(),
		Metrics:     metrics,
	}

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:    sessions,
		Dispatcher:  dispatcher,
		Native:      native,
		Delegate:    deleg,
		Catalog:     catalog,
		Downloader:  downloader,
		Coordinator: coord,
		Splitter:    splitter,
		Journal:     store,
		JournalKind: journalKind,
		EngineMode:  cfg.EngineMode,
		Metrics:     metrics,
		Hub:         hub,
	})

	cleanup := func() error {
		var errs []string
		dispatcher.Cancel()
		q.Close()
		if err := eng.Terminate(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := coord.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	info := VoiceInfo{Delegate: delegName, Journal: journalKind}
	if v := native.Voice(); v.ID != "" {
		info.ID = v.ID
		info.Language = v.Language
		info.SampleRate = v.SampleRate
	}
	if englishLoaded {
		if eng, ok := catalog.English(); ok {
			info.English = eng.ID
		}
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Native:     native,
		Metrics:    metrics,
		Voice:      info,
		Cleanup:    cleanup,
	}, nil
}

func buildEngine(cfg config.Config) engine.Engine {
	if cfg.EngineMode == "mock" {
		return engine.NewMock()
	}
	return engine.NewProc(engine.ProcConfig{
		Bin:            cfg.EngineBin,
		StartupTimeout: cfg.EngineStartupTimeout,
	})
}

// buildDelegate resolves the English-side synthesizer. Mode "auto"
// takes a remote endpoint when configured, falling back to a local
// binary; with both present the remote is wrapped in sticky failover.
// Nil means ASCII text goes through the native engine's English voice.
func buildDelegate(cfg config.Config, feed delegate.Feed) (delegate.Backend, string) {
	var execBackend delegate.Backend
	if cfg.DelegateBin != "" {
		if _, err := exec.LookPath(cfg.DelegateBin); err == nil {
			execBackend = delegate.NewExec(cfg.DelegateBin, feed)
		}
	}

	switch cfg.DelegateMode {
	case "mock":
		return delegate.NewMock(feed), "mock"
	case "exec":
		if execBackend == nil {
			return nil, "none"
		}
		return execBackend, "exec"
	case "remote":
		return newRemote(cfg, feed), "remote"
	default: // auto
		if cfg.DelegateURL != "" {
			remote := newRemote(cfg, feed)
			if execBackend != nil {
				return delegate.NewFailover(remote, execBackend), "remote+exec"
			}
			return remote, "remote"
		}
		if execBackend != nil {
			return execBackend, "exec"
		}
		return nil, "none"
	}
}

func newRemote(cfg config.Config, feed delegate.Feed) *delegate.Remote {
	r := delegate.NewRemote(cfg.DelegateURL)
	r.SetFeed(feed)
	return r
}
