// Package llmclient wraps a text-generation provider with the call
// discipline a long book run needs: a sliding-window rate limit, exponential
// retry with jitter, and JSON repair of the replies.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Params configures a single generation request.
type Params struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

var (
	// ErrContentBlocked reports that the provider refused the prompt on
	// safety grounds. Retried within the attempt budget since block
	// decisions are not always deterministic.
	ErrContentBlocked = errors.New("content blocked by provider safety settings")

	// ErrEmptyReply reports a response that arrived without usable text.
	ErrEmptyReply = errors.New("provider returned an empty reply")
)

// Provider issues one completion request against a text-generation service.
// Implementations map provider-specific refusals to ErrContentBlocked so the
// client can classify them.
type Provider interface {
	Generate(ctx context.Context, prompt string, p Params) (string, error)
}

const pingPrompt = "Return ONLY a valid JSON object with one key 'status' and value 'ok'."

// Ping issues a minimal low-temperature request to verify credentials and
// connectivity. Only transport failures and safety blocks are reported as
// errors; a reply that arrives but ignores the requested format still proves
// the connection works. The returned status is the value the model reported,
// or empty when the reply did not parse.
func Ping(ctx context.Context, provider Provider, model string) (string, error) {
	raw, err := provider.Generate(ctx, pingPrompt, Params{
		Model:           model,
		Temperature:     0.1,
		MaxOutputTokens: 64,
	})
	if err != nil {
		return "", fmt.Errorf("ping %s: %w", model, err)
	}
	fixed, _ := Repair(raw)
	var reply struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(fixed), &reply); err != nil {
		return "", nil
	}
	return reply.Status, nil
}
