package lock

import (
	"context"
	"sync/atomic"
)

// Token is a fencing token identifying one acquisition attempt.
type Token uint64

// TokenSource mints a fresh token for every acquisition attempt.
type TokenSource interface {
	NextToken(ctx context.Context, session Session) (Token, error)
}

// Counter is a process-local token source. Tokens start at 1, are unique among
// concurrent callers of one process and wrap silently on overflow. They are
// not unique across processes or restarts.
type Counter struct {
	n atomic.Uint64
}

// Next returns the next token.
func (c *Counter) Next() Token {
	return Token(c.n.Add(1))
}

// NextToken implements TokenSource without touching the store.
func (c *Counter) NextToken(context.Context, Session) (Token, error) {
	return c.Next(), nil
}

var processCounter Counter

// ProcessTokens returns the process-wide counter.
func ProcessTokens() *Counter {
	return &processCounter
}

type storeSequence struct{}

// StoreTokens draws tokens from an atomic counter kept in the store itself,
// so tokens stay unique and increasing across every process sharing it.
func StoreTokens() TokenSource {
	return storeSequence{}
}

func (storeSequence) NextToken(ctx context.Context, session Session) (Token, error) {
	return session.NextToken(ctx)
}
