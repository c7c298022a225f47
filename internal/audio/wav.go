package audio

import (
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
// A non-positive sample rate falls back to 16 kHz.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out, nil
}

// DecodePCM16 strips the WAV container from PCM16LE mono audio, walking
// chunks so containers with extra metadata (LIST etc.) still decode. Used
// for subprocess synthesizers that can only write WAV.
func DecodePCM16(wav []byte) (pcm []byte, sampleRate int, err error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE stream")
	}

	pos := 12
	haveFmt := false
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		pos += 8
		if size < 0 || pos+size > len(wav) {
			// Tolerate a data chunk whose declared size overruns the
			// buffer (streaming writers patch it up afterwards).
			if id == "data" && haveFmt {
				return wav[pos:], sampleRate, nil
			}
			return nil, 0, fmt.Errorf("truncated %q chunk", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("fmt chunk too short: %d", size)
			}
			format := binary.LittleEndian.Uint16(wav[pos : pos+2])
			channels := binary.LittleEndian.Uint16(wav[pos+2 : pos+4])
			rate := binary.LittleEndian.Uint32(wav[pos+4 : pos+8])
			bits := binary.LittleEndian.Uint16(wav[pos+14 : pos+16])
			if format != 1 || bits != 16 {
				return nil, 0, fmt.Errorf("unsupported format %d/%d-bit, want PCM/16-bit", format, bits)
			}
			if channels != 1 {
				return nil, 0, fmt.Errorf("unsupported channel count %d, want mono", channels)
			}
			sampleRate = int(rate)
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("data chunk before fmt chunk")
			}
			return wav[pos : pos+size], sampleRate, nil
		}
		pos += size
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}
	return nil, 0, fmt.Errorf("no data chunk found")
}
