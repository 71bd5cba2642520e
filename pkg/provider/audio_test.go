package provider

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPCM16InWAV(t *testing.T) {
	pcm := make([]byte, 4800) // 100ms of mono 16-bit 24kHz
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}

	wav := WrapPCM16InWAV(pcm)
	require.Len(t, wav, 44+len(pcm))

	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, "data", string(wav[36:40]))

	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[20:22]), "linear PCM")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]), "mono")
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[28:32]), "byte rate")
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(wav[32:34]), "block align")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
}

func TestSpeechContentType(t *testing.T) {
	assert.Equal(t, "audio/mpeg", SpeechContentType(""))
	assert.Equal(t, "audio/mpeg", SpeechContentType("mp3"))
	assert.Equal(t, "audio/wav", SpeechContentType("pcm"))
	assert.Equal(t, "audio/wav", SpeechContentType("wav"))
	assert.Equal(t, "audio/opus", SpeechContentType("opus"))
}

func TestIsPCMFormat(t *testing.T) {
	assert.True(t, IsPCMFormat("pcm"))
	assert.True(t, IsPCMFormat("wav"))
	assert.False(t, IsPCMFormat("mp3"))
	assert.False(t, IsPCMFormat(""))
}
