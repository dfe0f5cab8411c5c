package id

import (
	"context"

	"github.com/BBbrighton/qr-suite/internal/core"
)

// Generator implements core.TokenGenerator using random URL-safe tokens.
type Generator struct {
	bytes int
}

// NewGenerator creates a token generator drawing n random bytes per token.
func NewGenerator(n int) *Generator {
	if n < MinTokenBytes {
		n = MinTokenBytes
	}
	return &Generator{bytes: n}
}

// NewToken generates a new random token.
func (g *Generator) NewToken(_ context.Context) (string, error) {
	return RandomToken(g.bytes)
}

// Ensure *Generator satisfies the interface at compile-time.
var _ core.TokenGenerator = (*Generator)(nil)
