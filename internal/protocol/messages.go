// Package protocol defines the websocket wire format between the speech
// host (a screen reader or other client) and the daemon.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vaanilabs/vaani/internal/speech"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Inbound.
	TypeSpeak     MessageType = "speak"
	TypeCancel    MessageType = "cancel"
	TypePause     MessageType = "pause"
	TypeSetVoice  MessageType = "set_voice"
	TypeSetRate   MessageType = "set_rate"
	TypeSetVolume MessageType = "set_volume"
	TypeSetPitch  MessageType = "set_pitch"
	TypePing      MessageType = "ping"

	// Outbound.
	TypeReady         MessageType = "ready"
	TypeIndexReached  MessageType = "index_reached"
	TypeSpeechStarted MessageType = "speech_started"
	TypeAudio         MessageType = "audio"
	TypePaused        MessageType = "paused"
	TypeVoiceSet      MessageType = "voice_set"
	TypePong          MessageType = "pong"
	TypeErrorEvent    MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Item is one element of a speak request's content array.
type Item struct {
	Kind  string `json:"kind"`
	Text  string `json:"text,omitempty"`
	ID    int    `json:"id,omitempty"`
	On    bool   `json:"on,omitempty"`
	Lang  string `json:"lang,omitempty"`
	Ms    int    `json:"ms,omitempty"`
	Value int    `json:"value,omitempty"`
	IPA   string `json:"ipa,omitempty"`
}

type Speak struct {
	Type  MessageType `json:"type"`
	Items []Item      `json:"items"`
}

type Cancel struct {
	Type MessageType `json:"type"`
}

type Pause struct {
	Type MessageType `json:"type"`
	On   bool        `json:"on"`
}

type SetVoice struct {
	Type  MessageType `json:"type"`
	Voice string      `json:"voice"`
}

// SetParam carries set_rate, set_volume and set_pitch; Type says which.
type SetParam struct {
	Type  MessageType `json:"type"`
	Value int         `json:"value"`
}

type Ping struct {
	Type MessageType `json:"type"`
}

type Ready struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Voice     string      `json:"voice"`
	Rate      int         `json:"rate"`
	Volume    int         `json:"volume"`
	Pitch     int         `json:"pitch"`
}

// IndexReached reports mark progress. A null id means the utterance
// completed.
type IndexReached struct {
	Type MessageType `json:"type"`
	ID   *int        `json:"id"`
}

type SpeechStarted struct {
	Type MessageType `json:"type"`
}

type Audio struct {
	Type        MessageType `json:"type"`
	Sink        string      `json:"sink"`
	SampleRate  int         `json:"sample_rate"`
	PCM16Base64 string      `json:"pcm16_base64"`
}

type Paused struct {
	Type MessageType `json:"type"`
	On   bool        `json:"on"`
}

type VoiceSet struct {
	Type  MessageType `json:"type"`
	Voice string      `json:"voice"`
	Lang  string      `json:"lang"`
}

type Pong struct {
	Type MessageType `json:"type"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

// ParseClientMessage decodes and validates one inbound frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSpeak:
		var msg Speak
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		for i, it := range msg.Items {
			if err := validateItem(it); err != nil {
				return nil, fmt.Errorf("speak item %d: %w", i, err)
			}
		}
		return msg, nil
	case TypeCancel:
		return Cancel{Type: env.Type}, nil
	case TypePause:
		var msg Pause
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeSetVoice:
		var msg SetVoice
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Voice == "" {
			return nil, errors.New("invalid set_voice: empty voice id")
		}
		return msg, nil
	case TypeSetRate, TypeSetVolume, TypeSetPitch:
		var msg SetParam
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Value < 0 || msg.Value > 100 {
			return nil, fmt.Errorf("invalid %s: value %d out of 0-100", env.Type, msg.Value)
		}
		return msg, nil
	case TypePing:
		return Ping{Type: env.Type}, nil
	default:
		return nil, ErrUnsupportedType
	}
}

func validateItem(it Item) error {
	switch it.Kind {
	case "text":
		if it.Text == "" {
			return errors.New("empty text")
		}
	case "index":
		// Negative ids are reserved for internal boundary marks.
		if it.ID < 0 {
			return fmt.Errorf("index id %d must be non-negative", it.ID)
		}
	case "char_mode", "lang", "break", "pitch", "volume", "phoneme":
	default:
		return fmt.Errorf("unknown item kind %q", it.Kind)
	}
	return nil
}

// ToRequest converts wire items into the splitter's representation.
func ToRequest(items []Item) speech.Request {
	req := make(speech.Request, 0, len(items))
	for _, it := range items {
		switch it.Kind {
		case "text":
			req = append(req, speech.Text(it.Text))
		case "index":
			req = append(req, speech.IndexMark(it.ID))
		case "char_mode":
			req = append(req, speech.CharMode(it.On))
		case "lang":
			req = append(req, speech.LangChange(it.Lang))
		case "break":
			req = append(req, speech.Break(it.Ms))
		case "pitch":
			req = append(req, speech.Pitch(it.Value))
		case "volume":
			req = append(req, speech.Volume(it.Value))
		case "phoneme":
			req = append(req, speech.Phoneme(it.IPA, it.Text))
		}
	}
	return req
}
