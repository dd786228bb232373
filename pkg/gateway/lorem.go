package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/rs/zerolog/log"
)

const DefaultLoremDelay = 100 * time.Millisecond

// LoremGateway answers with generated lorem ipsum, one word per fragment. It
// needs no network and no API key.
type LoremGateway struct {
	mu        sync.Mutex
	generator *loremgen.Lorem
	delay     time.Duration
	sentences int
}

var _ Gateway = (*LoremGateway)(nil)

// NewLoremGateway waits delay between two streamed words. A zero delay
// streams as fast as the consumer reads.
func NewLoremGateway(delay time.Duration) *LoremGateway {
	return &LoremGateway{
		generator: loremgen.New(),
		delay:     delay,
		sentences: 3,
	}
}

func (g *LoremGateway) text() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	sentences := make([]string, 0, g.sentences)
	for i := 0; i < g.sentences; i++ {
		sentences = append(sentences, g.generator.Sentence(5, 15))
	}
	return strings.Join(sentences, " ")
}

func (g *LoremGateway) Complete(ctx context.Context, msgs []conversation.ChatMessage) (conversation.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return conversation.ChatMessage{}, &GatewayError{Op: "complete", Err: err}
	}
	return conversation.ChatMessage{Role: conversation.RoleAssistant, Content: g.text()}, nil
}

func (g *LoremGateway) Stream(ctx context.Context, msgs []conversation.ChatMessage) (FragmentStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: "stream", Err: err}
	}
	words := strings.Fields(g.text())
	log.Debug().Int("num_messages", len(msgs)).Int("words", len(words)).Msg("lorem stream started")

	return StreamFrom(ctx, func(ctx context.Context, ch chan<- Fragment) {
		for i, w := range words {
			if i > 0 {
				w = " " + w
				if g.delay > 0 {
					select {
					case <-time.After(g.delay):
					case <-ctx.Done():
						return
					}
				}
			}
			select {
			case ch <- Fragment{Text: w}:
			case <-ctx.Done():
				return
			}
		}
	}), nil
}
