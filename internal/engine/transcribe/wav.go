package transcribe

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM audio
// every backend in this package expects.
const bitsPerSample = 16

// errNotPCMWAV is returned by decodeWAV when the payload is not a
// PCM-encoded RIFF/WAVE file this package knows how to read.
var errNotPCMWAV = errors.New("transcribe: payload is not a 16-bit PCM WAV file")

// wavFormat describes the audio format recovered from a WAV container's
// fmt sub-chunk.
type wavFormat struct {
	sampleRate int
	channels   int
}

// decodeWAV parses a RIFF/WAVE container and returns its raw PCM bytes
// alongside the format declared in the fmt sub-chunk. It walks sub-chunks
// generically so the fmt and data chunks may appear in either order and
// extra chunks (e.g. LIST) are skipped, but only 16-bit integer PCM
// (audio format 1) is understood; anything else is rejected.
func decodeWAV(payload []byte) ([]byte, wavFormat, error) {
	var format wavFormat

	if len(payload) < 12 || string(payload[0:4]) != "RIFF" || string(payload[8:12]) != "WAVE" {
		return nil, format, errNotPCMWAV
	}

	var pcm []byte
	haveFmt := false
	pos := 12
	for pos+8 <= len(payload) {
		id := string(payload[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(payload[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(payload) {
			size = len(payload) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, format, fmt.Errorf("transcribe: fmt chunk too short (%d bytes)", size)
			}
			audioFormat := binary.LittleEndian.Uint16(payload[body : body+2])
			if audioFormat != 1 {
				return nil, format, fmt.Errorf("transcribe: unsupported WAV audio format %d", audioFormat)
			}
			format.channels = int(binary.LittleEndian.Uint16(payload[body+2 : body+4]))
			format.sampleRate = int(binary.LittleEndian.Uint32(payload[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(payload[body+14 : body+16])
			if bits != bitsPerSample {
				return nil, format, fmt.Errorf("transcribe: unsupported bit depth %d, want 16", bits)
			}
			haveFmt = true
		case "data":
			pcm = payload[body : body+size]
		}

		// Sub-chunks are padded to even length.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if !haveFmt || pcm == nil {
		return nil, format, errNotPCMWAV
	}
	if format.channels <= 0 {
		format.channels = 1
	}
	return pcm, format, nil
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. Used by tests to build fixture payloads.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// pcmToFloat32Mono down-mixes multi-channel 16-bit PCM to mono float32
// samples normalised to [-1.0, 1.0], averaging all channels per frame.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return pcmToFloat32(pcm)
	}
	samplesPerChannel := len(pcm) / (2 * channels)
	mono := make([]float32, samplesPerChannel)
	for i := range samplesPerChannel {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// pcmToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. The input length must be
// even (two bytes per sample); any trailing odd byte is silently ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}
