package delegate

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/vaanilabs/vaani/internal/audio"
	"github.com/vaanilabs/vaani/internal/speech"
)

// Exec synthesizes through a local command-line synthesizer, one
// subprocess invocation per text group. The command must write a WAV
// stream to stdout (espeak-ng --stdout does).
type Exec struct {
	cmd  string
	feed Feed

	mu       sync.Mutex
	settings Settings
	cancel   context.CancelFunc
}

// NewExec returns a backend invoking cmd for each synthesis request.
func NewExec(cmd string, feed Feed) *Exec {
	return &Exec{
		cmd:      cmd,
		feed:     feed,
		settings: Settings{Rate: 50, Volume: 100, Pitch: 50},
	}
}

func (e *Exec) Name() string { return "exec" }

func (e *Exec) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

func (e *Exec) Apply(s Settings) {
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
}

func (e *Exec) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Pause is handled by the shared audio path; subprocess output is
// already fully buffered by the time playback pauses.
func (e *Exec) Pause(bool) {}

func (e *Exec) Speak(ctx context.Context, items []speech.Item, ev Events) error {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	set := e.settings
	e.mu.Unlock()
	defer cancel()

	for _, g := range groupItems(items) {
		if g.text != "" {
			wav, err := e.run(ctx, set, g.text)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			pcm, rate, err := audio.DecodePCM16(wav)
			if err != nil {
				return fmt.Errorf("decode %s output: %w", e.cmd, err)
			}
			if len(pcm) > 0 && !e.feed(pcm, rate) {
				return ctx.Err()
			}
		}
		if g.hasMark && ev.Index != nil {
			ev.Index(g.mark)
		}
	}
	if ev.Done != nil {
		ev.Done()
	}
	return nil
}

// run invokes the synthesizer once. The rate and pitch settings map
// onto espeak-ng's words-per-minute and 0-99 pitch scales.
func (e *Exec) run(ctx context.Context, set Settings, text string) ([]byte, error) {
	args := []string{
		"--stdout",
		"-s", strconv.Itoa(80 + set.Rate*4),
		"-p", strconv.Itoa(set.Pitch),
		"-a", strconv.Itoa(set.Volume * 2),
	}
	if set.Voice != "" {
		v := set.Voice
		if set.Variant != "" {
			v += "+" + set.Variant
		}
		args = append(args, "-v", v)
	}
	args = append(args, "--", text)
	out, err := exec.CommandContext(ctx, e.cmd, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", e.cmd, err)
	}
	return out, nil
}

// ListVoices parses the synthesizer's voice listing (espeak-ng
// --voices format: columns Pty Language Age/Gender VoiceName ...).
func (e *Exec) ListVoices(ctx context.Context) ([]Voice, error) {
	out, err := exec.CommandContext(ctx, e.cmd, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("list %s voices: %w", e.cmd, err)
	}
	return parseVoiceListing(out), nil
}
