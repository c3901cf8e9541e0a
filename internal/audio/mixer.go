package audio

import "time"

// Mixed audio is 48kHz mono signed 16-bit little-endian PCM.
const (
	SampleRate     = 48000
	Channels       = 1
	BytesPerSample = 2
	FrameDuration  = 20 * time.Millisecond
	FrameBytes     = SampleRate * Channels * BytesPerSample * int(FrameDuration/time.Millisecond) / 1000
)

type Mixer interface {
	WriteOpusPacket(userID string, opus []byte)
	ReadMixedPCM(buf []byte) (int, error)
	Close()
}

type MixerFactory func() Mixer

// PCMDuration reports how long n bytes of mixed PCM last.
func PCMDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(SampleRate*Channels*BytesPerSample)
}
