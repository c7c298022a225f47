package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vaanilabs/vaani/internal/delegate"
	"github.com/vaanilabs/vaani/internal/voices"
)

type voiceListResponse struct {
	Voices  []voices.Voice `json:"voices"`
	English *voices.Voice  `json:"english,omitempty"`
	Current string         `json:"current"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	resp := voiceListResponse{
		Voices:  s.deps.Catalog.List(),
		Current: s.deps.Native.Voice().ID,
	}
	if eng, ok := s.deps.Catalog.English(); ok {
		resp.English = &eng
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRescanVoices(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Catalog.Rescan(); err != nil {
		respondError(w, http.StatusInternalServerError, "rescan_failed", err.Error())
		return
	}
	s.handleListVoices(w, r)
}

type availableVoice struct {
	voices.Voice
	Installed bool `json:"installed"`
}

func (s *Server) handleAvailableVoices(w http.ResponseWriter, r *http.Request) {
	avail, err := s.deps.Downloader.FetchManifest(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "manifest_unreachable", err.Error())
		return
	}
	out := make([]availableVoice, 0, len(avail))
	for _, av := range avail {
		_, installed := s.deps.Catalog.Get(av.ID)
		out = append(out, availableVoice{Voice: av.Voice, Installed: installed})
	}
	respondJSON(w, http.StatusOK, map[string]any{"voices": out})
}

func (s *Server) handleInstallVoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	avail, err := s.deps.Downloader.FetchManifest(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "manifest_unreachable", err.Error())
		return
	}
	for _, av := range avail {
		if av.ID != id {
			continue
		}
		if err := s.deps.Downloader.Install(r.Context(), av); err != nil {
			respondError(w, http.StatusBadGateway, "install_failed", err.Error())
			return
		}
		if err := s.deps.Catalog.Rescan(); err != nil {
			respondError(w, http.StatusInternalServerError, "rescan_failed", err.Error())
			return
		}
		v, _ := s.deps.Catalog.Get(id)
		respondJSON(w, http.StatusOK, v)
		return
	}
	respondError(w, http.StatusNotFound, "unknown_voice", "voice "+id+" is not in the manifest")
}

func (s *Server) handleRemoveVoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.deps.Native.Voice().ID == id {
		respondError(w, http.StatusConflict, "voice_in_use", "cannot remove the active voice")
		return
	}
	if err := s.deps.Catalog.Remove(id); err != nil {
		if errors.Is(err, voices.ErrNotInstalled) {
			respondError(w, http.StatusNotFound, "unknown_voice", "no installed voice "+id)
			return
		}
		respondError(w, http.StatusInternalServerError, "remove_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type currentVoiceResponse struct {
	Voice voices.Voice `json:"voice"`
	Rate  int          `json:"rate"`
	Vol   int          `json:"volume"`
	Pitch int          `json:"pitch"`
}

func (s *Server) handleGetVoice(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, currentVoiceResponse{
		Voice: s.deps.Native.Voice(),
		Rate:  s.deps.Native.Rate(),
		Vol:   s.deps.Native.Volume(),
		Pitch: s.deps.Native.Pitch(),
	})
}

func (s *Server) handleSetVoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Voice string `json:"voice"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Voice == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "voice is required")
		return
	}
	if _, ok := s.deps.Catalog.Get(req.Voice); !ok {
		respondError(w, http.StatusNotFound, "unknown_voice", "no installed voice "+req.Voice)
		return
	}
	s.deps.Native.SetVoice(req.Voice)
	s.handleGetVoice(w, r)
}

func (s *Server) handleGetDelegateSettings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Delegate == nil {
		respondError(w, http.StatusNotFound, "no_delegate", "no delegate backend configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"backend":  s.deps.Delegate.Name(),
		"settings": s.deps.Delegate.Settings(),
	})
}

func (s *Server) handleSetDelegateSettings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Delegate == nil {
		respondError(w, http.StatusNotFound, "no_delegate", "no delegate backend configured")
		return
	}
	var next delegate.Settings
	if err := decodeJSON(r, &next); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if !validProsody(next.Rate) || !validProsody(next.Volume) || !validProsody(next.Pitch) {
		respondError(w, http.StatusBadRequest, "bad_request", "rate, volume and pitch must be 0-100")
		return
	}
	s.deps.Delegate.Apply(next)
	respondJSON(w, http.StatusOK, map[string]any{
		"backend":  s.deps.Delegate.Name(),
		"settings": s.deps.Delegate.Settings(),
	})
}

func validProsody(v int) bool { return v >= 0 && v <= 100 }
