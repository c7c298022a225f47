package delegate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaanilabs/vaani/internal/speech"
)

const remoteWriteTimeout = 5 * time.Second

// Remote synthesizes over a websocket connection to an external
// synthesis service. The connection is dialed lazily and redialed
// after failures; one request is in flight at a time.
type Remote struct {
	url  string
	feed Feed
	dial func(ctx context.Context, url string) (*websocket.Conn, error)

	mu       sync.Mutex
	conn     *websocket.Conn
	settings Settings
	cancel   context.CancelFunc
	seq      int
}

// remoteRequest is the service's synthesis request frame.
type remoteRequest struct {
	Type     string   `json:"type"`
	Seq      int      `json:"seq,omitempty"`
	Text     string   `json:"text,omitempty"`
	Marks    []int    `json:"marks,omitempty"`
	Settings Settings `json:"settings,omitempty"`
}

// remoteEvent is one frame of the service's reply stream.
type remoteEvent struct {
	Type       string          `json:"type"`
	Seq        int             `json:"seq,omitempty"`
	Audio      string          `json:"audio,omitempty"`
	SampleRate int             `json:"sample_rate,omitempty"`
	Mark       int             `json:"mark,omitempty"`
	Message    string          `json:"message,omitempty"`
	Voices     json.RawMessage `json:"voices,omitempty"`
}

// NewRemote returns a backend speaking the service protocol at url
// (ws:// or wss://).
func NewRemote(url string) *Remote {
	return &Remote{
		url:      url,
		settings: Settings{Rate: 50, Volume: 100, Pitch: 50},
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// SetFeed binds the audio path. Must be called before Speak.
func (r *Remote) SetFeed(feed Feed) { r.feed = feed }

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Settings() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

func (r *Remote) Apply(s Settings) {
	r.mu.Lock()
	r.settings = s
	r.mu.Unlock()
}

func (r *Remote) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	conn := r.conn
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		// Best effort: a failed cancel write surfaces as a read error on
		// the speak loop, which redials.
		conn.SetWriteDeadline(time.Now().Add(remoteWriteTimeout))
		_ = conn.WriteJSON(remoteRequest{Type: "cancel"})
	}
}

func (r *Remote) Pause(bool) {}

// ensureConn dials if no live connection exists. Callers hold r.mu.
func (r *Remote) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := r.dial(ctx, r.url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %v: %w", r.url, err, ErrUnavailable)
	}
	r.conn = conn
	return conn, nil
}

// dropConn closes and forgets the connection after a protocol error so
// the next Speak redials.
func (r *Remote) dropConn(conn *websocket.Conn) {
	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
	}
	r.mu.Unlock()
	conn.Close()
}

func (r *Remote) Speak(ctx context.Context, items []speech.Item, ev Events) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.cancel = cancel
	r.seq++
	seq := r.seq
	set := r.settings
	conn, err := r.ensureConn(ctx)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	req := remoteRequest{Type: "speak", Seq: seq, Settings: set}
	for _, g := range groupItems(items) {
		req.Text += g.text
		if g.hasMark {
			req.Marks = append(req.Marks, g.mark)
		}
	}
	conn.SetWriteDeadline(time.Now().Add(remoteWriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		r.dropConn(conn)
		return fmt.Errorf("write speak: %w", ErrUnavailable)
	}
	return r.readReply(ctx, conn, seq, ev)
}

// readReply consumes the stream of audio, mark, done and error frames
// for one request. Frames carrying an older seq are leftovers from a
// cancelled request and are skipped.
func (r *Remote) readReply(ctx context.Context, conn *websocket.Conn, seq int, ev Events) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var evt remoteEvent
		if err := conn.ReadJSON(&evt); err != nil {
			r.dropConn(conn)
			return fmt.Errorf("read reply: %w", ErrUnavailable)
		}
		if evt.Seq != 0 && evt.Seq < seq {
			continue
		}
		switch evt.Type {
		case "audio":
			pcm, err := base64.StdEncoding.DecodeString(evt.Audio)
			if err != nil {
				r.dropConn(conn)
				return fmt.Errorf("decode audio frame: %w", err)
			}
			if len(pcm) > 0 && !r.feed(pcm, evt.SampleRate) {
				return ctx.Err()
			}
		case "mark":
			if ev.Index != nil {
				ev.Index(evt.Mark)
			}
		case "done":
			if ev.Done != nil {
				ev.Done()
			}
			return nil
		case "error":
			return fmt.Errorf("remote synthesis: %s", evt.Message)
		}
	}
}

func (r *Remote) ListVoices(ctx context.Context) ([]Voice, error) {
	r.mu.Lock()
	conn, err := r.ensureConn(ctx)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	conn.SetWriteDeadline(time.Now().Add(remoteWriteTimeout))
	if err := conn.WriteJSON(remoteRequest{Type: "voices"}); err != nil {
		r.dropConn(conn)
		return nil, fmt.Errorf("write voices: %w", ErrUnavailable)
	}
	for {
		var evt remoteEvent
		if err := conn.ReadJSON(&evt); err != nil {
			r.dropConn(conn)
			return nil, fmt.Errorf("read voices: %w", ErrUnavailable)
		}
		if evt.Type != "voices" {
			continue
		}
		var voices []Voice
		if err := json.Unmarshal(evt.Voices, &voices); err != nil {
			return nil, fmt.Errorf("decode voices: %w", err)
		}
		return voices, nil
	}
}
