//go:build opus

package audio

import (
	"testing"

	"github.com/foxseedlab/mojinote/internal/audio"
	"github.com/hraban/opus"
)

func encodeTestFrame(t *testing.T, amplitude int16) []byte {
	t.Helper()
	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppVoIP)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}
	pcm := make([]int16, samplesPerFrame)
	for i := range pcm {
		if i%2 == 0 {
			pcm[i] = amplitude
		} else {
			pcm[i] = -amplitude
		}
	}
	out := make([]byte, 4000)
	n, err := enc.Encode(pcm, out)
	if err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	return out[:n]
}

func TestOpusMixer_MixesOneFramePerSpeaker(t *testing.T) {
	m := NewOpusMixer()
	defer m.Close()

	buf := make([]byte, audio.FrameBytes)
	if n, _ := m.ReadMixedPCM(buf); n != 0 {
		t.Fatalf("expected silence before any packet, got %d bytes", n)
	}

	packet := encodeTestFrame(t, 3000)
	m.WriteOpusPacket("user-1", packet)
	m.WriteOpusPacket("user-2", packet)
	m.WriteOpusPacket("user-1", packet)

	if n, err := m.ReadMixedPCM(buf); err != nil || n != audio.FrameBytes {
		t.Fatalf("first read = %d, %v", n, err)
	}
	if n, err := m.ReadMixedPCM(buf); err != nil || n != audio.FrameBytes {
		t.Fatalf("second read = %d, %v", n, err)
	}
	if n, _ := m.ReadMixedPCM(buf); n != 0 {
		t.Fatalf("expected queues to be drained, got %d bytes", n)
	}
}

func TestOpusMixer_IgnoresWritesAfterClose(t *testing.T) {
	m := NewOpusMixer()
	m.Close()
	m.WriteOpusPacket("user-1", encodeTestFrame(t, 1000))

	if n, _ := m.ReadMixedPCM(make([]byte, audio.FrameBytes)); n != 0 {
		t.Fatalf("expected no audio after close, got %d bytes", n)
	}
}

func TestClampPCM(t *testing.T) {
	if clampPCM(40000) != 32767 || clampPCM(-40000) != -32768 || clampPCM(12) != 12 {
		t.Fatal("unexpected clamp result")
	}
}
