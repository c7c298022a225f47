package delegate

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/vaanilabs/vaani/internal/speech"
)

// NewFailover builds a backend that prefers primary and automatically
// switches to fallback when a primary Speak fails. Once fallback
// succeeds, it stays active until fallback fails; then primary is
// retried.
func NewFailover(primary, fallback Backend) *Failover {
	return &Failover{primary: primary, fallback: fallback}
}

type Failover struct {
	primary  Backend
	fallback Backend

	fallbackActive atomic.Bool
}

// Active returns whichever backend a new request would go to.
func (f *Failover) Active() Backend {
	if f.fallbackActive.Load() {
		return f.fallback
	}
	return f.primary
}

func (f *Failover) Name() string {
	return fmt.Sprintf("failover(%s)", f.Active().Name())
}

func (f *Failover) Speak(ctx context.Context, items []speech.Item, ev Events) error {
	if f.fallbackActive.Load() {
		fbErr := f.fallback.Speak(ctx, items, ev)
		if fbErr == nil || ctx.Err() != nil {
			return fbErr
		}
		// Fallback failed after being active; try primary again.
		prErr := f.primary.Speak(ctx, items, ev)
		if prErr == nil {
			f.fallbackActive.Store(false)
			return nil
		}
		return fmt.Errorf("delegate fallback failed: %v; delegate primary failed: %w", fbErr, prErr)
	}

	prErr := f.primary.Speak(ctx, items, ev)
	if prErr == nil || ctx.Err() != nil {
		return prErr
	}
	fbErr := f.fallback.Speak(ctx, items, ev)
	if fbErr != nil {
		return fmt.Errorf("delegate primary failed: %v; delegate fallback failed: %w", prErr, fbErr)
	}
	f.fallbackActive.Store(true)
	return nil
}

func (f *Failover) Cancel() {
	f.primary.Cancel()
	f.fallback.Cancel()
}

func (f *Failover) Pause(on bool) {
	f.primary.Pause(on)
	f.fallback.Pause(on)
}

// Settings reads from and Apply writes to both backends so the pair
// stays interchangeable mid-session.
func (f *Failover) Settings() Settings { return f.Active().Settings() }

func (f *Failover) Apply(s Settings) {
	f.primary.Apply(s)
	f.fallback.Apply(s)
}

func (f *Failover) ListVoices(ctx context.Context) ([]Voice, error) {
	voices, err := f.Active().ListVoices(ctx)
	if err != nil && f.Active() == f.primary {
		return f.fallback.ListVoices(ctx)
	}
	return voices, err
}
