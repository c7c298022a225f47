package engine

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ProcConfig configures the engine child process.
type ProcConfig struct {
	// Bin is the engine binary, looked up on PATH when not absolute.
	Bin  string
	Args []string
	// StartupTimeout bounds the wait for the init ack. Default 15s.
	StartupTimeout time.Duration
	// AckTimeout bounds the wait for any later op ack. Default 30s.
	AckTimeout time.Duration
}

// Proc runs the native engine as a child process speaking line-delimited
// JSON: ops go down stdin, each answered by an ack carrying a status code,
// with audio and index events interleaved on stdout. The reader goroutine
// is the callback thread.
type Proc struct {
	cfg ProcConfig

	// mu serializes ops so at most one ack is outstanding; wmu guards
	// stdin writes, which the reader also needs for abort replies.
	mu  sync.Mutex
	wmu sync.Mutex

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	closed bool
	nextID int64

	cb         Callbacks
	acks       chan procAck
	readerDone chan struct{}
}

type procOp struct {
	Op          string  `json:"op"`
	ID          int64   `json:"id,omitempty"`
	DataDir     string  `json:"data_dir,omitempty"`
	Text        string  `json:"text,omitempty"`
	LengthScale float64 `json:"length_scale,omitempty"`
	Volume      float64 `json:"volume,omitempty"`
	CharMode    bool    `json:"char_mode,omitempty"`
	Voice       string  `json:"voice,omitempty"`
	Dir         string  `json:"dir,omitempty"`
	Speaker     int     `json:"speaker,omitempty"`
}

type procEvent struct {
	Type       string `json:"type"`
	ID         int64  `json:"id,omitempty"`
	Code       int    `json:"code,omitempty"`
	PCM        string `json:"pcm,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Native     bool   `json:"native,omitempty"`
	Mark       int    `json:"mark,omitempty"`
	Error      string `json:"error,omitempty"`
}

type procAck struct {
	ID   int64
	Code int
}

func NewProc(cfg ProcConfig) *Proc {
	if strings.TrimSpace(cfg.Bin) == "" {
		cfg.Bin = "vaani-engine"
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 15 * time.Second
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 30 * time.Second
	}
	return &Proc{
		cfg:        cfg,
		acks:       make(chan procAck, 4),
		readerDone: make(chan struct{}),
	}
}

// Init starts the child process and waits for it to acknowledge the init
// op, which names the voice data directory. A process that fails to ack
// within the startup timeout is killed and its stderr tail is returned in
// the error.
func (p *Proc) Init(dataDir string, cb Callbacks) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("engine: already terminated")
	}
	if p.cmd != nil {
		return fmt.Errorf("engine: already initialized")
	}

	binPath := p.cfg.Bin
	if !strings.ContainsRune(binPath, os.PathSeparator) {
		resolved, err := exec.LookPath(binPath)
		if err != nil {
			return fmt.Errorf("engine binary not found: %s", binPath)
		}
		binPath = resolved
	}

	tail := newTailBuffer(24 << 10)
	cmd := exec.Command(binPath, p.cfg.Args...)
	cmd.Stderr = tail

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stderr = tail
	p.cb = cb
	go p.reader(json.NewDecoder(stdout))

	p.nextID++
	id := p.nextID
	if err := p.write(procOp{Op: "init", ID: id, DataDir: dataDir}); err != nil {
		p.shutdownLocked()
		return fmt.Errorf("engine init: %w", err)
	}
	if st := p.awaitAck(id, p.cfg.StartupTimeout); st != StatusOK {
		p.shutdownLocked()
		msg := tail.String()
		if msg == "" {
			msg = st.String()
		}
		return fmt.Errorf("engine failed to start: %s", msg)
	}
	return nil
}

func (p *Proc) Synthesize(text string, params Params) Status {
	return p.call(procOp{
		Op:          "synthesize",
		Text:        text,
		LengthScale: params.LengthScale,
		Volume:      params.Volume,
		CharMode:    params.CharMode,
	})
}

func (p *Proc) SetVoice(id, dir string) Status {
	return p.call(procOp{Op: "set_voice", Voice: id, Dir: dir})
}

func (p *Proc) SetEnglishVoice(id, dir string) Status {
	return p.call(procOp{Op: "set_english_voice", Voice: id, Dir: dir})
}

func (p *Proc) SetSpeaker(id int) Status {
	return p.call(procOp{Op: "set_speaker", Speaker: id})
}

// Terminate closes stdin and gives the process a short grace period to
// exit before killing it. Safe to call more than once.
func (p *Proc) Terminate() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	stdin := p.stdin
	cmd := p.cmd
	p.stdin = nil
	p.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-time.After(1200 * time.Millisecond):
		_ = cmd.Process.Kill()
		<-done
	case <-done:
	}
	return nil
}

// StderrTail returns the tail of the child's stderr, for diagnostics.
func (p *Proc) StderrTail() string {
	p.mu.Lock()
	tail := p.stderr
	p.mu.Unlock()
	if tail == nil {
		return ""
	}
	return tail.String()
}

func (p *Proc) call(op procOp) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.cmd == nil {
		return StatusInternalError
	}
	p.nextID++
	op.ID = p.nextID
	if err := p.write(op); err != nil {
		return StatusInternalError
	}
	return p.awaitAck(op.ID, p.cfg.AckTimeout)
}

func (p *Proc) write(op procOp) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	stdin := p.stdin
	if stdin == nil {
		return fmt.Errorf("engine stdin closed")
	}
	b, err := json.Marshal(op)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = stdin.Write(b)
	return err
}

// awaitAck waits for the ack matching id. Acks for older, timed-out ops
// are drained and skipped; ids are monotonic so a mismatch can only be
// stale, never early.
func (p *Proc) awaitAck(id int64, timeout time.Duration) Status {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-p.acks:
			if ack.ID != id {
				continue
			}
			return Status(ack.Code)
		case <-p.readerDone:
			return StatusInternalError
		case <-timer.C:
			return StatusInternalError
		}
	}
}

func (p *Proc) reader(dec *json.Decoder) {
	defer close(p.readerDone)
	for {
		var ev procEvent
		if err := dec.Decode(&ev); err != nil {
			return
		}
		if err := p.handleEvent(ev); err != nil {
			return
		}
	}
}

func (p *Proc) handleEvent(ev procEvent) error {
	switch ev.Type {
	case "ack":
		select {
		case p.acks <- procAck{ID: ev.ID, Code: ev.Code}:
		default:
			// Nobody is waiting; the op timed out long ago.
		}
	case "audio":
		if p.cb.Audio == nil {
			return nil
		}
		var pcm []byte
		if ev.PCM != "" {
			decoded, err := base64.StdEncoding.DecodeString(ev.PCM)
			if err != nil {
				return fmt.Errorf("decode pcm: %w", err)
			}
			pcm = decoded
		}
		rate := ev.SampleRate
		if rate <= 0 {
			rate = 16000
		}
		if p.cb.Audio(pcm, rate, ev.Native) == Abort {
			p.sendAbort()
		}
	case "index":
		if p.cb.Index == nil {
			return nil
		}
		if p.cb.Index(ev.Mark) == Abort {
			p.sendAbort()
		}
	}
	return nil
}

// sendAbort tells the engine to stop synthesizing the current job. Best
// effort: a write failure means the process is already gone.
func (p *Proc) sendAbort() {
	_ = p.write(procOp{Op: "abort"})
}

// shutdownLocked kills the child after a failed init. Caller holds p.mu.
func (p *Proc) shutdownLocked() {
	if p.stdin != nil {
		_ = p.stdin.Close()
		p.stdin = nil
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.cmd = nil
}

// tailBuffer keeps the last max bytes written, for bounded stderr capture.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 16 << 10
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
