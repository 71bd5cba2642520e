package provider

import "encoding/binary"

// PCM16 speech parameters shared by providers that return raw linear PCM.
const (
	pcmSampleRate    = 24000
	pcmChannels      = 1
	pcmBitsPerSample = 16
)

// WrapPCM16InWAV prepends a RIFF/WAVE header to raw PCM16 audio (mono,
// 16-bit little-endian, 24 kHz). Providers that already return a container
// format (MP3, OGG) pass their bytes through untouched.
func WrapPCM16InWAV(pcm []byte) []byte {
	const headerSize = 44
	dataLen := len(pcm)

	byteRate := pcmSampleRate * pcmChannels * pcmBitsPerSample / 8
	blockAlign := pcmChannels * pcmBitsPerSample / 8

	out := make([]byte, headerSize+dataLen)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // audio format: linear PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(pcmChannels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(pcmSampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(pcmBitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataLen))
	copy(out[44:], pcm)
	return out
}

// IsPCMFormat reports whether a requested speech response_format yields raw
// PCM that needs WAV wrapping.
func IsPCMFormat(format string) bool {
	return format == "pcm" || format == "pcm16" || format == "wav"
}

// SpeechContentType maps a speech response_format to its media type.
func SpeechContentType(format string) string {
	switch format {
	case "", "mp3":
		return "audio/mpeg"
	case "pcm", "pcm16", "wav":
		return "audio/wav"
	case "opus":
		return "audio/opus"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
