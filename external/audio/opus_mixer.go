//go:build opus

package audio

import (
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/foxseedlab/mojinote/internal/audio"
	"github.com/hraban/opus"
)

const (
	samplesPerFrame = audio.FrameBytes / audio.BytesPerSample
	// maxQueuedFrames bounds how far one speaker can run ahead of the mix.
	maxQueuedFrames = 250
)

// OpusMixer decodes each speaker's opus stream to mono PCM and sums one
// frame per speaker on every read.
type OpusMixer struct {
	mu       sync.Mutex
	decoders map[string]*opus.Decoder
	queues   map[string][][]int16
	closed   bool
}

func NewOpusMixer() audio.Mixer {
	return &OpusMixer{
		decoders: make(map[string]*opus.Decoder),
		queues:   make(map[string][][]int16),
	}
}

func (m *OpusMixer) WriteOpusPacket(userID string, packet []byte) {
	if len(packet) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	dec, ok := m.decoders[userID]
	if !ok {
		var err error
		dec, err = opus.NewDecoder(audio.SampleRate, audio.Channels)
		if err != nil {
			slog.Warn("failed to create opus decoder", "user_id", userID, "error", err)
			return
		}
		m.decoders[userID] = dec
	}

	pcm := make([]int16, samplesPerFrame)
	n, err := dec.Decode(packet, pcm)
	if err != nil || n <= 0 {
		return
	}
	q := m.queues[userID]
	if len(q) >= maxQueuedFrames {
		q = q[1:]
	}
	m.queues[userID] = append(q, pcm[:min(n*audio.Channels, samplesPerFrame)])
}

func (m *OpusMixer) ReadMixedPCM(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, nil
	}

	mixed := make([]int32, samplesPerFrame)
	heard := false
	for userID, q := range m.queues {
		if len(q) == 0 {
			continue
		}
		heard = true
		for i, s := range q[0] {
			mixed[i] += int32(s)
		}
		m.queues[userID] = q[1:]
	}
	if !heard {
		return 0, nil
	}

	n := min(len(buf)/audio.BytesPerSample, samplesPerFrame)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(clampPCM(mixed[i])))
	}
	return n * audio.BytesPerSample, nil
}

func clampPCM(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func (m *OpusMixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.decoders = nil
	m.queues = nil
}
