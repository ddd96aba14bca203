// Package embedding provides vector embedding generation for memory text,
// with an OpenAI-backed client and an LRU cache wrapper.
package embedding

import "context"

// Generator produces vector embeddings for text.
type Generator interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for several texts, in input order.
	// Identical normalized inputs are deduplicated before the remote call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// GetModel returns the embedding model name.
	GetModel() string
}
