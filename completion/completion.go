// Package completion abstracts the model-provider chat completion stream.
//
// The sync engine treats a provider purely as an opaque producer of
// (chunk, isFinal) events appended to an in-progress assistant record.
package completion

import (
	"context"
	"sync/atomic"

	"github.com/solidSpoon/DashChat/entity"
)

// Config carries the per-request provider settings.
type Config struct {
	Model     string
	MaxTokens int
	System    string
}

// OnChunk receives one text chunk; final is true exactly once, on the
// terminating event. Returning an error stops the stream.
type OnChunk func(chunk string, final bool) error

// Provider streams a chat completion for the given message history.
// The stream is finite and terminated by a final event or an error.
type Provider interface {
	StreamCompletion(ctx context.Context, cfg Config, messages []*entity.Message, onChunk OnChunk) error
}

// Cancel is a cooperative cancellation flag. The consuming loop checks it
// between chunks and stops reading further ones without discarding partial
// state already written.
type Cancel struct {
	flag atomic.Bool
}

// Set requests cancellation.
func (c *Cancel) Set() { c.flag.Store(true) }

// Requested reports whether cancellation was requested.
func (c *Cancel) Requested() bool { return c.flag.Load() }
