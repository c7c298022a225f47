package httpapi

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaanilabs/vaani/internal/protocol"
	"github.com/vaanilabs/vaani/internal/session"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsReadTimeout   = 120 * time.Second
	wsOutboundDepth = 256
	wsReadLimit     = 2 << 20
)

// handleSpeechWS runs one host channel: a screen reader connects,
// gets a session and a ready frame, then drives the dispatcher with
// speak/cancel/pause messages while audio, index and lifecycle events
// stream back. Only the most recent channel receives audio and index
// events; an older one keeps its control surface but goes quiet.
func (s *Server) handleSpeechWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := r.URL.Query().Get("client")
	if client == "" {
		client = "unknown"
	}
	native := s.deps.Native
	voice := native.Voice()
	sess := s.deps.Sessions.Create(client, voice.ID, native.Rate(), native.Volume(), native.Pitch())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, wsOutboundDepth)

	// Events are dropped rather than blocking the speech path when the
	// peer stops draining; audio frames dominate the queue.
	enqueue := func(msg any) {
		select {
		case outbound <- msg:
		default:
		}
	}

	detachNotify := s.bindWS(
		func(id *int) {
			enqueue(protocol.IndexReached{Type: protocol.TypeIndexReached, ID: id})
		},
		func() {
			enqueue(protocol.SpeechStarted{Type: protocol.TypeSpeechStarted})
		},
	)
	defer detachNotify()

	detachAudio := s.deps.Hub.BindStream(func(sink string, sampleRate int, pcm []byte) {
		enqueue(protocol.Audio{
			Type:        protocol.TypeAudio,
			Sink:        sink,
			SampleRate:  sampleRate,
			PCM16Base64: base64.StdEncoding.EncodeToString(pcm),
		})
	})
	defer detachAudio()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	enqueue(protocol.Ready{
		Type:      protocol.TypeReady,
		SessionID: sess.ID,
		Voice:     voice.ID,
		Rate:      native.Rate(),
		Volume:    native.Volume(),
		Pitch:     native.Pitch(),
	})

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	s.readLoop(ctx, conn, sess.ID, enqueue)

	// Speech outlasting its host channel would play to nobody.
	if s.deps.Dispatcher.Speaking() {
		s.deps.Dispatcher.Cancel()
	}
	cancel()
	conn.Close()
	<-writerDone
	s.deps.Sessions.End(sess.ID)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string, enqueue func(any)) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		msg, err := protocol.ParseClientMessage(raw)
		if err != nil {
			enqueue(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "bad_message", Detail: err.Error()})
			continue
		}
		s.deps.Sessions.Touch(sessionID)
		s.handleClientMessage(msg, sessionID, enqueue)
	}
}

func (s *Server) handleClientMessage(msg any, sessionID string, enqueue func(any)) {
	native := s.deps.Native
	switch m := msg.(type) {
	case protocol.Speak:
		s.deps.Sessions.CountUtterance(sessionID)
		s.deps.Dispatcher.Speak(sessionID, protocol.ToRequest(m.Items))

	case protocol.Cancel:
		s.deps.Dispatcher.Cancel()
		s.deps.Sessions.CountCancel(sessionID)

	case protocol.Pause:
		if err := s.deps.Dispatcher.Pause(m.On); err != nil {
			enqueue(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "not_speaking", Detail: err.Error()})
			return
		}
		enqueue(protocol.Paused{Type: protocol.TypePaused, On: m.On})

	case protocol.SetVoice:
		if _, ok := s.deps.Catalog.Get(m.Voice); !ok {
			enqueue(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "unknown_voice", Detail: "no installed voice " + m.Voice})
			return
		}
		native.SetVoice(m.Voice)
		v := native.Voice()
		s.deps.Sessions.Update(sessionID, func(sess *session.Session) { sess.VoiceID = v.ID })
		enqueue(protocol.VoiceSet{Type: protocol.TypeVoiceSet, Voice: v.ID, Lang: v.LangISO})

	case protocol.SetParam:
		switch m.Type {
		case protocol.TypeSetRate:
			native.SetRate(m.Value)
			s.deps.Sessions.Update(sessionID, func(sess *session.Session) { sess.Rate = m.Value })
		case protocol.TypeSetVolume:
			native.SetVolume(m.Value)
			s.deps.Sessions.Update(sessionID, func(sess *session.Session) { sess.Volume = m.Value })
		case protocol.TypeSetPitch:
			native.SetPitch(m.Value)
			s.deps.Sessions.Update(sessionID, func(sess *session.Session) { sess.Pitch = m.Value })
		}

	case protocol.Ping:
		enqueue(protocol.Pong{Type: protocol.TypePong})
	}
}
