package delegate

import (
	"bufio"
	"bytes"
	"strings"
)

// parseVoiceListing reads the columnar voice table espeak-ng prints:
// a header line, then "Pty Language Age/Gender VoiceName File ...".
func parseVoiceListing(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if first {
			first = false
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		voices = append(voices, Voice{
			ID:   fields[3],
			Name: fields[3],
			Lang: fields[1],
		})
	}
	return voices
}
