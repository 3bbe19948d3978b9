package gemini

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

var ErrNoCandidates = errors.New("model returned no candidates")

// Completer runs single-shot chat completions.
type Completer struct {
	client *genai.Client
	model  string
}

func NewCompleter(client *genai.Client, model string) *Completer {
	return &Completer{client: client, model: model}
}

// Complete returns the concatenated text parts of the first candidate.
func (c *Completer) Complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	m := c.client.GenerativeModel(c.model)
	m.SetTemperature(temperature)
	if system != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		slog.ErrorContext(ctx, "completion failed", "model", c.model, "error", err)
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoCandidates
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	slog.DebugContext(ctx, "completion received", "model", c.model, "length", b.Len())
	return b.String(), nil
}
