// Package engine defines the boundary to the native synthesis engine.
// The engine consumes tag-annotated text and produces PCM audio and index
// events through callbacks; it runs its own worker (a child process for
// Proc), so callbacks never arrive on the goroutine that submitted the
// request.
package engine

import (
	"errors"
	"fmt"
)

// Status is the result code of an engine operation. The values mirror the
// engine's wire protocol and must not be renumbered.
type Status int

const (
	StatusOK            Status = 0
	StatusInternalError Status = -1
	StatusBufferFull    Status = 1
	StatusNotFound      Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInternalError:
		return "internal_error"
	case StatusBufferFull:
		return "buffer_full"
	case StatusNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var (
	ErrInternal   = errors.New("engine: internal error")
	ErrBufferFull = errors.New("engine: synthesis buffer full")
	ErrNotFound   = errors.New("engine: voice data not found")
)

// Err maps a status to its sentinel error, nil for StatusOK. Unknown codes
// map to ErrInternal.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusBufferFull:
		return ErrBufferFull
	case StatusNotFound:
		return ErrNotFound
	default:
		return ErrInternal
	}
}

// Disposition tells callers how to react to a non-OK status.
type Disposition int

const (
	// DispositionOK: the operation succeeded.
	DispositionOK Disposition = iota
	// DispositionTransient: the engine is momentarily saturated. The
	// original request is still queued, so no explicit retry is needed.
	DispositionTransient
	// DispositionFallback: voice data is missing. Select another voice
	// rather than surfacing an error.
	DispositionFallback
	// DispositionFatal: abandon the current segment but keep dispatching;
	// the engine itself may still be usable.
	DispositionFatal
)

func (d Disposition) String() string {
	switch d {
	case DispositionOK:
		return "ok"
	case DispositionTransient:
		return "transient"
	case DispositionFallback:
		return "fallback"
	default:
		return "fatal"
	}
}

// Classify maps a status to the reaction it calls for.
func Classify(s Status) Disposition {
	switch s {
	case StatusOK:
		return DispositionOK
	case StatusBufferFull:
		return DispositionTransient
	case StatusNotFound:
		return DispositionFallback
	default:
		return DispositionFatal
	}
}

// Action is a callback's verdict on whether the engine should keep
// synthesizing the current job.
type Action int

const (
	Continue Action = 0
	Abort    Action = 1
)

// Callbacks receive audio and index events from the engine. A nil pcm
// slice is the end-of-utterance signal: the engine has no more audio for
// the current job. The native flag says which voice produced the chunk,
// the engine's own script voice or its embedded English voice.
//
// Callbacks must be fast and must not call back into the Engine.
type Callbacks struct {
	Audio func(pcm []byte, sampleRate int, native bool) Action
	Index func(id int) Action
}

// Params tune one synthesis request.
type Params struct {
	// LengthScale stretches phoneme duration; 1.0 is the voice's natural
	// rate, larger is slower.
	LengthScale float64
	// Volume is the output amplitude in 0..1.
	Volume float64
	// CharMode asks the engine to speak character descriptions rather
	// than words.
	CharMode bool
}

// Engine is the native synthesis engine boundary.
//
// Synthesize returns as soon as the engine accepts the text; audio and
// index events stream through the Callbacks given to Init. SetVoice and
// SetEnglishVoice load voice models from a data directory; a non-OK
// status from either must trigger the caller's voice fallback policy.
type Engine interface {
	Init(dataDir string, cb Callbacks) error
	Synthesize(text string, p Params) Status
	SetVoice(id, dir string) Status
	SetEnglishVoice(id, dir string) Status
	SetSpeaker(id int) Status
	Terminate() error
}
