package config

import (
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/missionmesh/model"
	modelanthropic "github.com/hupe1980/missionmesh/model/anthropic"
	modelopenai "github.com/hupe1980/missionmesh/model/openai"
)

// NewModel builds a model for a provider name from an agent spec. Credentials
// come from the environment (ANTHROPIC_API_KEY, OPENAI_API_KEY). The mock
// provider yields an empty scripted model, useful for dry runs.
func NewModel(provider, name string) (model.Model, error) {
	switch provider {
	case "anthropic":
		return modelanthropic.NewModel(func(o *modelanthropic.Options) {
			if name != "" {
				o.Model = sdk.Model(name)
			}
		}), nil
	case "openai":
		return modelopenai.NewModel(func(o *modelopenai.Options) {
			if name != "" {
				o.Model = name
			}
		}), nil
	case "mock":
		return model.NewMockModel(name), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", provider)
	}
}
