package gateway

import (
	"github.com/go-go-golems/loom/pkg/settings"
	"github.com/pkg/errors"
)

// New builds the gateway selected by s.
func New(s settings.GatewaySettings) (Gateway, error) {
	switch s.Type {
	case settings.GatewayOpenAI:
		return NewOpenAIGateway(s.APIKey, s.BaseURL,
			WithModel(s.Model),
			WithSystemPrompt(s.SystemPrompt),
		)
	case settings.GatewaySSE:
		return NewSSEGateway(s.BaseURL, s.Timeout)
	case settings.GatewayLorem:
		return NewLoremGateway(s.LoremDelay), nil
	default:
		return nil, errors.Errorf("unknown gateway type %q", s.Type)
	}
}
