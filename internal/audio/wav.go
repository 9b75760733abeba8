package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// HeaderSize is the size of the canonical PCM WAV header written for every chunk
	HeaderSize = 44

	// maxSubChunks bounds the walk over RIFF sub-chunks when locating the payload
	maxSubChunks = 64

	riffMagic = "RIFF"
	waveTag   = "WAVE"
	fmtID     = "fmt "
	dataID    = "data"
)

// ErrInvalidContainer is matched by every container parsing failure
var ErrInvalidContainer = errors.New("invalid WAV container")

// InvalidContainerError describes why a buffer is not a usable WAV container
type InvalidContainerError struct {
	Reason string
}

func (e *InvalidContainerError) Error() string {
	return fmt.Sprintf("invalid WAV file: %s", e.Reason)
}

// Is allows errors.Is(err, ErrInvalidContainer)
func (e *InvalidContainerError) Is(target error) bool {
	return target == ErrInvalidContainer
}

func invalidContainer(format string, args ...interface{}) error {
	return &InvalidContainerError{Reason: fmt.Sprintf(format, args...)}
}

// Metadata describes the PCM format and payload location of a WAV buffer
type Metadata struct {
	SampleRate    uint32 `json:"sample_rate"`
	Channels      uint16 `json:"channels"`
	BitsPerSample uint16 `json:"bits_per_sample"`
	DataSize      uint32 `json:"data_size_bytes"`
	HeaderSize    uint32 `json:"header_size_bytes"`
}

// FrameSize returns the number of bytes in one sample instant across all channels
func (m Metadata) FrameSize() int {
	return int(m.Channels) * int(m.BitsPerSample/8)
}

// BytesPerMillisecond returns the PCM byte rate per millisecond
func (m Metadata) BytesPerMillisecond() float64 {
	return float64(m.SampleRate) * float64(m.FrameSize()) / 1000.0
}

// Duration returns the playback length of the payload
func (m Metadata) Duration() time.Duration {
	bytesPerSecond := float64(m.SampleRate) * float64(m.FrameSize())
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(float64(m.DataSize) / bytesPerSecond * float64(time.Second))
}

// Payload returns the PCM bytes of buf described by m
func (m Metadata) Payload(buf []byte) []byte {
	return buf[m.HeaderSize : m.HeaderSize+m.DataSize]
}

// AlignDown rounds offset down to the nearest frame boundary
func (m Metadata) AlignDown(offset int) int {
	frame := m.FrameSize()
	if frame <= 0 || offset <= 0 {
		return 0
	}
	return offset - offset%frame
}

// ParseMetadata validates the WAV header of buf and locates its data chunk.
// The data chunk is not assumed to sit at offset 36; sub-chunks are walked
// from offset 12 until it is found.
func ParseMetadata(buf []byte) (Metadata, error) {
	if len(buf) < HeaderSize {
		return Metadata{}, invalidContainer("data too short: need at least %d bytes, got %d", HeaderSize, len(buf))
	}

	if string(buf[0:4]) != riffMagic {
		return Metadata{}, invalidContainer("missing RIFF header")
	}

	if string(buf[8:12]) != waveTag {
		return Metadata{}, invalidContainer("missing WAVE format tag at offset 8")
	}

	var meta Metadata
	fmtFound := false
	offset := 12

	for i := 0; i < maxSubChunks && offset+8 <= len(buf); i++ {
		id := string(buf[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(buf[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case fmtID:
			if size < 16 || body+16 > len(buf) {
				return Metadata{}, invalidContainer("truncated fmt chunk")
			}
			meta.Channels = binary.LittleEndian.Uint16(buf[body+2 : body+4])
			meta.SampleRate = binary.LittleEndian.Uint32(buf[body+4 : body+8])
			meta.BitsPerSample = binary.LittleEndian.Uint16(buf[body+14 : body+16])
			fmtFound = true

		case dataID:
			if !fmtFound {
				return Metadata{}, invalidContainer("data chunk precedes fmt chunk")
			}
			// Streaming writers leave the size unset or too large; clamp to what is present
			available := len(buf) - body
			if size > available || size == 0 {
				size = available
			}
			meta.HeaderSize = uint32(body)
			meta.DataSize = uint32(size)
			return meta, nil
		}

		// RIFF sub-chunks are word aligned
		next := body + size + size%2
		if next <= offset {
			break
		}
		offset = next
	}

	if !fmtFound {
		return Metadata{}, invalidContainer("missing fmt chunk")
	}
	return Metadata{}, invalidContainer("missing data chunk")
}

// BuildHeader synthesizes a canonical 44-byte PCM header for a payload of payloadSize bytes
func BuildHeader(meta Metadata, payloadSize int) []byte {
	header := make([]byte, HeaderSize)
	frame := uint16(meta.FrameSize())

	copy(header[0:4], riffMagic)
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+payloadSize))
	copy(header[8:12], waveTag)

	copy(header[12:16], fmtID)
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], meta.Channels)
	binary.LittleEndian.PutUint32(header[24:28], meta.SampleRate)
	binary.LittleEndian.PutUint32(header[28:32], meta.SampleRate*uint32(frame))
	binary.LittleEndian.PutUint16(header[32:34], frame)
	binary.LittleEndian.PutUint16(header[34:36], meta.BitsPerSample)

	copy(header[36:40], dataID)
	binary.LittleEndian.PutUint32(header[40:44], uint32(payloadSize))

	return header
}

// BuildChunk returns a standalone WAV buffer holding a copy of pcm
func BuildChunk(meta Metadata, pcm []byte) []byte {
	chunk := make([]byte, 0, HeaderSize+len(pcm))
	chunk = append(chunk, BuildHeader(meta, len(pcm))...)
	return append(chunk, pcm...)
}

// IsWAV reports whether buf starts with the RIFF/WAVE tags
func IsWAV(buf []byte) bool {
	return len(buf) >= 12 && string(buf[0:4]) == riffMagic && string(buf[8:12]) == waveTag
}
