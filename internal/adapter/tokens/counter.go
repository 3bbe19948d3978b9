// Package tokens estimates prompt sizes for logging.
package tokens

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultModel = "gpt-3.5-turbo"

// Counter counts tokens with a BPE encoding loaded on first use. When the
// encoding cannot be loaded it falls back to four runes per token.
type Counter struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func NewCounter(model string) *Counter {
	if model == "" {
		model = DefaultModel
	}
	return &Counter{model: model}
}

// Load fetches the encoding once and reports whether it is available.
// Count calls it lazily; calling it at startup keeps the fetch off the
// request path.
func (c *Counter) Load() bool {
	c.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			slog.Warn("token encoding unavailable, estimating", "model", c.model, "error", err)
			return
		}
		c.enc = enc
	})
	return c.enc != nil
}

func (c *Counter) Count(text string) int {
	if !c.Load() {
		return Estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Estimate approximates the token count from the rune count.
func Estimate(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
