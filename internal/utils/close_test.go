package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/folio/internal/logger"
)

type closer struct {
	err    error
	closed int
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

func TestClose(t *testing.T) {
	c := &closer{err: errors.New("boom")}
	Close(c)
	require.Equal(t, 1, c.closed)

	CloseLogged(c, logger.New("error", false), "test")
	require.Equal(t, 2, c.closed)
}
