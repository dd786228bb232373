// Package settings holds loom's configuration: which completion gateway to
// talk to, where the server listens and how to log.
package settings

import (
	"io"
	"time"

	"github.com/go-go-golems/loom/pkg/security"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type GatewayType string

const (
	GatewayOpenAI GatewayType = "openai"
	GatewaySSE    GatewayType = "sse"
	GatewayLorem  GatewayType = "lorem"
)

const (
	DefaultModel      = "gpt-4.1-nano"
	DefaultAddr       = ":5001"
	DefaultTimeout    = 60 * time.Second
	DefaultLoremDelay = 60 * time.Millisecond
)

type GatewaySettings struct {
	Type    GatewayType `yaml:"type" mapstructure:"type"`
	Model   string      `yaml:"model,omitempty" mapstructure:"model"`
	APIKey  string      `yaml:"api-key,omitempty" mapstructure:"api-key"`
	BaseURL string      `yaml:"base-url,omitempty" mapstructure:"base-url"`
	// Stream selects streamed replies over single completions.
	Stream       bool          `yaml:"stream" mapstructure:"stream"`
	SystemPrompt string        `yaml:"system-prompt,omitempty" mapstructure:"system-prompt"`
	Timeout      time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	LoremDelay   time.Duration `yaml:"lorem-delay,omitempty" mapstructure:"lorem-delay"`
	// AllowLocalNetworks permits base URLs on loopback and private networks,
	// over plain http too. Without it only public https endpoints are accepted.
	AllowLocalNetworks bool `yaml:"allow-local-networks" mapstructure:"allow-local-networks"`
}

type ServerSettings struct {
	Addr        string   `yaml:"addr" mapstructure:"addr"`
	CORSOrigins []string `yaml:"cors-origins,omitempty" mapstructure:"cors-origins"`
}

type LogSettings struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file,omitempty" mapstructure:"file"`
}

type Settings struct {
	Gateway GatewaySettings `yaml:"gateway" mapstructure:"gateway"`
	Server  ServerSettings  `yaml:"server" mapstructure:"server"`
	Log     LogSettings     `yaml:"log" mapstructure:"log"`
}

func NewSettings() *Settings {
	return &Settings{
		Gateway: GatewaySettings{
			Type:       GatewayLorem,
			Model:      DefaultModel,
			Stream:     true,
			Timeout:    DefaultTimeout,
			LoremDelay: DefaultLoremDelay,

			AllowLocalNetworks: true,
		},
		Server: ServerSettings{
			Addr:        DefaultAddr,
			CORSOrigins: []string{"*"},
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

func (g GatewaySettings) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.Type,
			validation.Required,
			validation.In(GatewayOpenAI, GatewaySSE, GatewayLorem),
		),
		validation.Field(&g.APIKey,
			validation.When(g.Type == GatewayOpenAI, validation.Required.Error("is required for the openai gateway")),
		),
		validation.Field(&g.BaseURL,
			validation.When(g.Type == GatewaySSE, validation.Required.Error("is required for the sse gateway")),
			validation.When(g.BaseURL != "", validation.By(g.checkBaseURL)),
		),
		validation.Field(&g.Timeout, validation.Min(0)),
		validation.Field(&g.LoremDelay, validation.Min(0)),
	)
}

func (g GatewaySettings) checkBaseURL(value interface{}) error {
	u, _ := value.(string)
	return security.ValidateGatewayURL(u, security.URLOptions{
		AllowHTTP:          g.AllowLocalNetworks,
		AllowLocalNetworks: g.AllowLocalNetworks,
	})
}

func (s ServerSettings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
	)
}

func (l LogSettings) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("trace", "debug", "info", "warn", "error", "fatal")),
		validation.Field(&l.Format, validation.In("text", "json")),
	)
}

// Validate checks every section and reports all problems at once.
func (s *Settings) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Gateway),
		validation.Field(&s.Server),
		validation.Field(&s.Log),
	)
	if err != nil {
		return errors.Wrap(err, "invalid settings")
	}
	return nil
}

// ReadYAML overlays the YAML document in r onto a copy of s. Keys missing
// from the document keep their current value.
func (s *Settings) ReadYAML(r io.Reader) (*Settings, error) {
	ret := s.Clone()
	if err := yaml.NewDecoder(r).Decode(ret); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "could not parse settings")
	}
	return ret, nil
}

// Redacted returns a copy that is safe to print or log.
func (s *Settings) Redacted() *Settings {
	ret := s.Clone()
	if ret.Gateway.APIKey != "" {
		ret.Gateway.APIKey = "***"
	}
	return ret
}

func (s *Settings) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return errors.Wrap(err, "could not encode settings")
	}
	return enc.Close()
}
