package classifier

import (
	"context"
	"strings"

	"github.com/cortexrouter/semantic-proxy/internal/classifier/local"
	"github.com/cortexrouter/semantic-proxy/internal/classifier/openai"
)

// RuntimeConfig configures the backend endpoints the Loader dispatches to.
// A classifier_model_path is an opaque content-addressed key (spec §3); by
// convention a "openai:<model>" prefix selects the remote OpenAI-compatible
// backend and everything else is treated as a local model path served by
// LocalEndpoint.
type RuntimeConfig struct {
	LocalEndpoint   string
	OpenAIEndpoint  string
	OpenAIAccessKey string
}

const openaiPrefix = "openai:"

// NewLoader builds the per-path Backend factory the Registry uses, mirroring
// the teacher's createClient(typ, baseURL, model, apiKey) dispatch switch
// generalized from inference engines to classifier backends.
func NewLoader(cfg RuntimeConfig) Loader {
	return func(ctx context.Context, path string) (Backend, error) {
		if strings.HasPrefix(path, openaiPrefix) {
			model := strings.TrimPrefix(path, openaiPrefix)

			return openai.New(openai.Config{
				BaseURL: cfg.OpenAIEndpoint,
				APIKey:  cfg.OpenAIAccessKey,
				Model:   model,
			})
		}

		return local.New(ctx, local.Config{
			Endpoint:  cfg.LocalEndpoint,
			ModelPath: path,
		})
	}
}
