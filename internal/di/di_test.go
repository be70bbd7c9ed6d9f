package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct{ n int }

func TestContainer_FactoryRunsOnce(t *testing.T) {
	c := NewContainer()
	builds := 0
	tok := NewToken[*counter]("test:counter")
	RegisterToken(c, tok, func(sr ServiceRegistry) *counter {
		builds++
		return &counter{n: sr.Get("start").(int)}
	})
	c.Register("start", 7)

	first := GetToken(c, tok)
	second := GetToken(c, tok)

	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)
	assert.Equal(t, 7, first.n)
}

func TestContainer_UnknownPanics(t *testing.T) {
	c := NewContainer()
	require.Panics(t, func() { c.Get("missing") })
}

func TestContainer_CyclePanics(t *testing.T) {
	c := NewContainer()
	c.RegisterFactory("a", func(sr ServiceRegistry) any { return sr.Get("b") })
	c.RegisterFactory("b", func(sr ServiceRegistry) any { return sr.Get("a") })
	require.Panics(t, func() { c.Get("a") })
}

type optional interface{ Name() string }

func TestGetToken_NilFactoryYieldsZero(t *testing.T) {
	c := NewContainer()
	tok := NewToken[optional]("test:optional")
	RegisterToken(c, tok, func(ServiceRegistry) optional { return nil })

	assert.Nil(t, GetToken(c, tok))
}
