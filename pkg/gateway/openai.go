package gateway

import (
	"context"
	"io"

	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = "gpt-4.1-nano"

// OpenAIGateway talks to the OpenAI chat completions API, or anything that
// speaks it.
type OpenAIGateway struct {
	client       *go_openai.Client
	model        string
	systemPrompt string
}

var _ Gateway = (*OpenAIGateway)(nil)

type OpenAIOption func(*OpenAIGateway)

func WithModel(model string) OpenAIOption {
	return func(g *OpenAIGateway) {
		if model != "" {
			g.model = model
		}
	}
}

// WithSystemPrompt prepends a system message to every request. It is never
// stored in a thread.
func WithSystemPrompt(prompt string) OpenAIOption {
	return func(g *OpenAIGateway) {
		g.systemPrompt = prompt
	}
}

func NewOpenAIGateway(apiKey string, baseURL string, options ...OpenAIOption) (*OpenAIGateway, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	ret := &OpenAIGateway{
		client: go_openai.NewClientWithConfig(config),
		model:  DefaultOpenAIModel,
	}
	for _, o := range options {
		o(ret)
	}
	return ret, nil
}

func (g *OpenAIGateway) request(msgs []conversation.ChatMessage, stream bool) go_openai.ChatCompletionRequest {
	messages := make([]go_openai.ChatCompletionMessage, 0, len(msgs)+1)
	if g.systemPrompt != "" {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: g.systemPrompt,
		})
	}
	for _, m := range msgs {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return go_openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   stream,
	}
}

func statusCode(err error) int {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func (g *OpenAIGateway) Complete(ctx context.Context, msgs []conversation.ChatMessage) (conversation.ChatMessage, error) {
	log.Debug().Int("num_messages", len(msgs)).Str("model", g.model).Msg("OpenAI completion started")
	resp, err := g.client.CreateChatCompletion(ctx, g.request(msgs, false))
	if err != nil {
		log.Error().Err(err).Msg("OpenAI completion request failed")
		return conversation.ChatMessage{}, &GatewayError{Op: "complete", StatusCode: statusCode(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return conversation.ChatMessage{}, &GatewayError{Op: "complete", Err: errors.New("response has no choices")}
	}
	return conversation.ChatMessage{
		Role:    conversation.RoleAssistant,
		Content: resp.Choices[0].Message.Content,
	}, nil
}

func (g *OpenAIGateway) Stream(ctx context.Context, msgs []conversation.ChatMessage) (FragmentStream, error) {
	log.Debug().Int("num_messages", len(msgs)).Str("model", g.model).Msg("OpenAI stream started")
	stream, err := g.client.CreateChatCompletionStream(ctx, g.request(msgs, true))
	if err != nil {
		log.Error().Err(err).Msg("OpenAI streaming request failed")
		return nil, &GatewayError{Op: "stream", StatusCode: statusCode(err), Err: err}
	}
	return &openaiStream{stream: stream}, nil
}

type openaiStream struct {
	stream *go_openai.ChatCompletionStream
	chunks int
}

// Recv skips chunks without text (role announcements, finish reasons).
func (s *openaiStream) Recv() (string, error) {
	for {
		response, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug().Int("chunks_received", s.chunks).Msg("OpenAI stream completed")
			return "", io.EOF
		}
		if err != nil {
			log.Error().Err(err).Int("chunks_received", s.chunks).Msg("OpenAI stream receive failed")
			return "", &StreamError{Err: err}
		}
		s.chunks++
		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *openaiStream) Close() error {
	s.stream.Close()
	return nil
}
