// vaaniperf replays synthetic utterances over the host websocket and
// reports first-audio and completion latency per utterance, plus the
// server's own stage window at the end.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaanilabs/vaani/internal/protocol"
)

type options struct {
	baseURL    string
	utterances int
	interDelay time.Duration
	uttTimeout time.Duration
	texts      []string
	verbose    bool
}

var defaultUtterances = []string{
	"राम और सीता वन को गए।",
	"मेरा email kumar@example.com है।",
	"The quick brown fox jumps over the lazy dog.",
	"कुल मिलाकर 42 items बचे हैं।",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vaaniperf: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "vaaniperf: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var interMS, timeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8480", "vaanid base URL")
	flag.IntVar(&cfg.utterances, "utterances", 20, "number of utterances to replay")
	flag.IntVar(&interMS, "inter-ms", 100, "delay between utterances in milliseconds")
	flag.IntVar(&timeoutMS, "timeout-ms", 15000, "per-utterance completion timeout in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.utterances <= 0 {
		return options{}, fmt.Errorf("utterances must be > 0")
	}
	if interMS < 0 {
		interMS = 0
	}
	if timeoutMS < 1000 {
		timeoutMS = 1000
	}
	cfg.interDelay = time.Duration(interMS) * time.Millisecond
	cfg.uttTimeout = time.Duration(timeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

// uttEvent is one observation from the read loop: first audio or
// completion for the utterance in flight.
type uttEvent struct {
	firstAudio bool
	done       bool
	err        error
}

func run(cfg options) error {
	wsURL := "ws" + strings.TrimPrefix(cfg.baseURL, "http") + "/ws/speech?client=vaaniperf"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	var ready protocol.Ready
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&ready); err != nil {
		return fmt.Errorf("read ready frame: %w", err)
	}
	if cfg.verbose {
		fmt.Printf("vaaniperf: session=%s voice=%s utterances=%d\n", ready.SessionID, ready.Voice, cfg.utterances)
	}

	events := make(chan uttEvent, 64)
	go readLoop(conn, events)

	var firstAudioMS, totalMS []float64
	for i := 0; i < cfg.utterances; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		speak := protocol.Speak{
			Type:  protocol.TypeSpeak,
			Items: []protocol.Item{{Kind: "text", Text: text}, {Kind: "index", ID: i + 1}},
		}
		start := time.Now()
		if err := conn.WriteJSON(speak); err != nil {
			return fmt.Errorf("utterance %d send: %w", i+1, err)
		}

		var firstAudio time.Duration
		gotAudio := false
		deadline := time.After(cfg.uttTimeout)
	wait:
		for {
			select {
			case ev := <-events:
				if ev.err != nil {
					return fmt.Errorf("utterance %d: %w", i+1, ev.err)
				}
				if ev.firstAudio && !gotAudio {
					firstAudio = time.Since(start)
					gotAudio = true
				}
				if ev.done {
					break wait
				}
			case <-deadline:
				return fmt.Errorf("utterance %d timed out after %s", i+1, cfg.uttTimeout)
			}
		}
		total := time.Since(start)
		if gotAudio {
			firstAudioMS = append(firstAudioMS, float64(firstAudio.Milliseconds()))
		}
		totalMS = append(totalMS, float64(total.Milliseconds()))

		if cfg.verbose {
			fmt.Printf("vaaniperf: %2d/%d first_audio=%s total=%s text=%q\n",
				i+1, cfg.utterances, firstAudio.Round(time.Millisecond), total.Round(time.Millisecond), text)
		}
		if cfg.interDelay > 0 && i < cfg.utterances-1 {
			time.Sleep(cfg.interDelay)
		}
	}

	printSummary("first_audio_ms", firstAudioMS)
	printSummary("utterance_total_ms", totalMS)
	return printServerPerf(cfg.baseURL)
}

func readLoop(conn *websocket.Conn, events chan<- uttEvent) {
	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			events <- uttEvent{err: err}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			events <- uttEvent{err: err}
			return
		}
		switch env.Type {
		case protocol.TypeAudio:
			events <- uttEvent{firstAudio: true}
		case protocol.TypeIndexReached:
			var ix protocol.IndexReached
			if err := json.Unmarshal(raw, &ix); err != nil {
				events <- uttEvent{err: err}
				return
			}
			if ix.ID == nil {
				events <- uttEvent{done: true}
			}
		case protocol.TypeErrorEvent:
			var ev protocol.ErrorEvent
			_ = json.Unmarshal(raw, &ev)
			events <- uttEvent{err: fmt.Errorf("server error %s: %s", ev.Code, ev.Detail)}
			return
		}
	}
}

func printSummary(name string, samples []float64) {
	if len(samples) == 0 {
		fmt.Printf("%-22s no samples\n", name)
		return
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	fmt.Printf("%-22s n=%d p50=%.0fms p95=%.0fms max=%.0fms\n",
		name, len(sorted), quantile(sorted, 0.5), quantile(sorted, 0.95), sorted[len(sorted)-1])
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}

func printServerPerf(baseURL string) error {
	res, err := http.Get(baseURL + "/v1/perf")
	if err != nil {
		return fmt.Errorf("fetch perf: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read perf: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("perf endpoint: status %d", res.StatusCode)
	}
	fmt.Printf("server stage window:\n%s\n", body)
	return nil
}
