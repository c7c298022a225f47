package httpapi

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/vaanilabs/vaani/internal/audio"
	"github.com/vaanilabs/vaani/internal/protocol"
	"github.com/vaanilabs/vaani/internal/speech"
)

const synthesizeTimeout = 30 * time.Second

// handleSynthesize runs one utterance through the full pipeline and
// returns the captured audio as a WAV body. It refuses while a host
// session is speaking; host traffic always wins.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text  string `json:"text"`
		Voice string `json:"voice,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}
	if req.Voice != "" {
		if _, ok := s.deps.Catalog.Get(req.Voice); !ok {
			respondError(w, http.StatusNotFound, "unknown_voice", "no installed voice "+req.Voice)
			return
		}
	}

	s.synthMu.Lock()
	defer s.synthMu.Unlock()

	if s.deps.Dispatcher.Speaking() {
		respondError(w, http.StatusConflict, "busy", "a host session is speaking")
		return
	}

	prevVoice := ""
	if req.Voice != "" && req.Voice != s.deps.Native.Voice().ID {
		prevVoice = s.deps.Native.Voice().ID
		s.deps.Native.SetVoice(req.Voice)
	}
	if prevVoice != "" {
		defer s.deps.Native.SetVoice(prevVoice)
	}

	var (
		capMu sync.Mutex
		rate  int
		buf   bytes.Buffer
	)
	detach := s.deps.Hub.BindCapture(func(_ string, sampleRate int, pcm []byte) {
		capMu.Lock()
		defer capMu.Unlock()
		if rate == 0 {
			rate = sampleRate
		}
		if sampleRate != rate {
			pcm = audio.ResamplePCM16LE(pcm, sampleRate, rate)
		}
		buf.Write(pcm)
	})
	defer detach()

	done := make(chan struct{}, 1)
	s.notifyMu.Lock()
	s.oneshotDone = done
	s.notifyMu.Unlock()
	defer func() {
		s.notifyMu.Lock()
		s.oneshotDone = nil
		s.notifyMu.Unlock()
	}()

	s.deps.Dispatcher.Speak("oneshot", speech.Request{speech.Text(req.Text)})

	select {
	case <-done:
	case <-r.Context().Done():
		s.deps.Dispatcher.Cancel()
		return
	case <-time.After(synthesizeTimeout):
		s.deps.Dispatcher.Cancel()
		respondError(w, http.StatusGatewayTimeout, "timeout", "synthesis did not finish in time")
		return
	}

	// Completion is signalled on the final index mark, which precedes
	// the tail of the audio drain; wait for the capture to settle.
	last := -1
	for i := 0; i < 200; i++ {
		capMu.Lock()
		n := buf.Len()
		capMu.Unlock()
		if n == last && !s.deps.Coordinator.Speaking() {
			break
		}
		last = n
		time.Sleep(5 * time.Millisecond)
	}

	capMu.Lock()
	pcm, sampleRate := buf.Bytes(), rate
	capMu.Unlock()
	if sampleRate == 0 {
		respondError(w, http.StatusBadGateway, "no_audio", "the pipeline produced no audio")
		return
	}
	wav, err := audio.EncodeWAVPCM16LE(pcm, sampleRate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encode_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	w.Write(wav)
}

type segmentView struct {
	Kind   string `json:"kind"`
	Script string `json:"script,omitempty"`
	Text   string `json:"text"`
	Marks  []int  `json:"marks,omitempty"`
}

// handleSegment exposes the splitter for inspection: it segments a
// request without synthesizing and reports how each run would route.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []protocol.Item `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "bad_request", "items are required")
		return
	}

	segs := s.deps.Splitter.Split(protocol.ToRequest(req.Items))
	out := make([]segmentView, 0, len(segs))
	for _, seg := range segs {
		view := segmentView{
			Kind:   seg.Class.Kind.String(),
			Script: string(seg.Class.Script),
			Text:   seg.PlainText(),
		}
		for _, it := range seg.Items {
			if it.Kind == speech.KindIndexMark && !speech.IsSynthetic(it.ID) {
				view.Marks = append(view.Marks, it.ID)
			}
		}
		out = append(out, view)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"home":     string(s.deps.Splitter.Home()),
		"segments": out,
	})
}
