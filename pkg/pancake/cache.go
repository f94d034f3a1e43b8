package pancake

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/neurodesk/pancake/pkg/lexer"
)

// TokenCache keeps the token streams of recently parsed templates keyed by
// template name. Token slices are never modified after tokenizing, so one
// cached slice can back any number of concurrent parses.
type TokenCache struct {
	tokens *lru.Cache
}

func NewTokenCache(size int) (*TokenCache, error) {
	tokens, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &TokenCache{tokens: tokens}, nil
}

func (c *TokenCache) Get(name string) ([]lexer.Token, bool) {
	if val, ok := c.tokens.Get(name); ok {
		if toks, ok := val.([]lexer.Token); ok {
			return toks, true
		}
	}
	return nil, false
}

func (c *TokenCache) Add(name string, toks []lexer.Token) {
	c.tokens.Add(name, toks)
}

// Remove drops the cached tokens for name, if any.
func (c *TokenCache) Remove(name string) {
	c.tokens.Remove(name)
}

// Purge drops every cached entry.
func (c *TokenCache) Purge() {
	c.tokens.Purge()
}

func (c *TokenCache) Len() int {
	return c.tokens.Len()
}
