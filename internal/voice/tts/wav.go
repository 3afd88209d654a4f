// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tts

import (
	"encoding/binary"
	"time"
)

// Every backend here emits mono 16-bit little-endian PCM.
const (
	defaultSampleRate = 24000
	bytesPerSample    = 2
	wavHeaderSize     = 44
)

// EncodeWAV wraps mono 16-bit PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	out := make([]byte, wavHeaderSize+len(pcm))
	le := binary.LittleEndian

	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16)
	le.PutUint16(out[20:22], 1) // PCM
	le.PutUint16(out[22:24], 1) // mono
	le.PutUint32(out[24:28], uint32(sampleRate))
	le.PutUint32(out[28:32], uint32(sampleRate*bytesPerSample))
	le.PutUint16(out[32:34], bytesPerSample)
	le.PutUint16(out[34:36], 8*bytesPerSample)
	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)

	return out
}

// PCMDuration is the play time of n bytes of mono 16-bit PCM.
func PCMDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate*bytesPerSample)
}

// WAVDuration reads the play time from a canonical WAV header. It returns
// zero for anything it cannot parse.
func WAVDuration(wav []byte) time.Duration {
	if len(wav) < wavHeaderSize || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0
	}
	le := binary.LittleEndian
	byteRate := le.Uint32(wav[28:32])
	if byteRate == 0 {
		return 0
	}
	dataLen := le.Uint32(wav[40:44])
	// Streaming encoders write a placeholder length.
	if dataLen == 0 || dataLen == 0xFFFFFFFF || int(dataLen) > len(wav)-wavHeaderSize {
		dataLen = uint32(len(wav) - wavHeaderSize)
	}
	return time.Duration(dataLen) * time.Second / time.Duration(byteRate)
}
