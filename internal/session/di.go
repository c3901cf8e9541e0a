package session

import (
	"github.com/foxseedlab/mojinote/internal/audio"
	"github.com/foxseedlab/mojinote/internal/config"
	"github.com/foxseedlab/mojinote/internal/discord"
	"github.com/foxseedlab/mojinote/internal/observe"
	"github.com/foxseedlab/mojinote/internal/repository"
	"github.com/foxseedlab/mojinote/internal/transcriber"
	"github.com/foxseedlab/mojinote/internal/transform"
	"github.com/foxseedlab/mojinote/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		return NewManager(Deps{
			Config:      do.MustInvoke[*config.Config](i),
			Repository:  do.MustInvoke[repository.Repository](i),
			Discord:     do.MustInvoke[discord.Client](i),
			Transcriber: do.MustInvoke[transcriber.Transcriber](i),
			Transforms:  do.MustInvoke[transform.Set](i),
			Webhook:     do.MustInvoke[webhook.Sender](i),
			NewMixer:    do.MustInvoke[audio.MixerFactory](i),
			Metrics:     do.MustInvoke[*observe.Metrics](i),
		}), nil
	})
}
