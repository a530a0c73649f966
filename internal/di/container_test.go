package di

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	closed *[]string
	name   string
}

func (c *closeRecorder) Close() error {
	*c.closed = append(*c.closed, c.name)
	return nil
}

func TestContainerLazyBuild(t *testing.T) {
	c := New()

	built := 0
	c.RegisterBuilder("svc", func(*Container) (any, error) {
		built++
		return "instance", nil
	})

	assert.True(t, c.Has("svc"))
	assert.Equal(t, 0, built)

	first, err := c.Get("svc")
	require.NoError(t, err)
	second, err := c.Get("svc")
	require.NoError(t, err)

	assert.Equal(t, "instance", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, built, "builder should run once")
}

func TestContainerUnknownService(t *testing.T) {
	c := New()
	_, err := c.Get("nope")
	assert.Error(t, err)
	assert.False(t, c.Has("nope"))
}

func TestContainerBuilderError(t *testing.T) {
	c := New()
	boom := errors.New("boom")
	c.RegisterBuilder("bad", func(*Container) (any, error) { return nil, boom })

	_, err := c.Get("bad")
	assert.ErrorIs(t, err, boom)
}

func TestContainerCloseReverseOrder(t *testing.T) {
	c := New()
	var closed []string

	c.Register("a", &closeRecorder{closed: &closed, name: "a"})
	c.Register("b", &closeRecorder{closed: &closed, name: "b"})
	c.Register("plain", 42)

	require.NoError(t, c.Close())
	assert.Equal(t, []string{"b", "a"}, closed)
	assert.False(t, c.Has("a"))
}
