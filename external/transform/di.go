package transform

import (
	"github.com/foxseedlab/mojinote/internal/config"
	"github.com/foxseedlab/mojinote/internal/transform"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transform.Set, error) {
		c := do.MustInvoke[*config.Config](i)
		client := ClientConfig{APIKey: c.OpenAIAPIKey, BaseURL: c.OpenAIBaseURL}
		return NewSet(client, c.OrganizeModel, c.FormatModel, c.PolishModel, c.CleanupModel), nil
	})
}

func NewSet(client ClientConfig, organizeModel, formatModel, polishModel, cleanupModel string) transform.Set {
	build := func(model string, p Profile) transform.Transformer {
		return transform.WithMinLength(NewChatTransformer(client, model, p), p.MinRunes)
	}
	return transform.Set{
		Organize: build(organizeModel, OrganizeProfile),
		Format:   build(formatModel, FormatProfile),
		Polish:   build(polishModel, PolishProfile),
		Cleanup:  build(cleanupModel, CleanupProfile),
	}
}
