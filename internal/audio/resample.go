package audio

import "encoding/binary"

// ResamplePCM16LE converts mono PCM16LE audio from one sample rate to
// another by nearest-neighbor pick. Quality is adequate for stitching
// short segments of mixed provenance into one container; it is not a
// playback-path filter.
func ResamplePCM16LE(pcm []byte, from, to int) []byte {
	if from <= 0 || to <= 0 || from == to || len(pcm) < 2 {
		return pcm
	}
	in := len(pcm) / 2
	out := int(int64(in) * int64(to) / int64(from))
	res := make([]byte, out*2)
	for i := 0; i < out; i++ {
		src := int(int64(i) * int64(from) / int64(to))
		if src >= in {
			src = in - 1
		}
		s := binary.LittleEndian.Uint16(pcm[src*2:])
		binary.LittleEndian.PutUint16(res[i*2:], s)
	}
	return res
}
