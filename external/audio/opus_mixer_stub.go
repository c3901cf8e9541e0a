//go:build !opus

package audio

import (
	"log/slog"

	"github.com/foxseedlab/mojinote/internal/audio"
)

// silentMixer stands in when the binary is built without libopus. It
// accepts packets and never yields audio.
type silentMixer struct{}

func NewOpusMixer() audio.Mixer {
	slog.Warn("built without opus support; voice audio will not be decoded")
	return silentMixer{}
}

func (silentMixer) WriteOpusPacket(_ string, _ []byte) {}

func (silentMixer) ReadMixedPCM(_ []byte) (int, error) {
	return 0, nil
}

func (silentMixer) Close() {}
