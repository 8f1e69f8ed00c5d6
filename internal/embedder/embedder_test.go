package embedder

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/chessmate/internal/chesserr"
)

func TestEmbed_EmptyInputNoOp(t *testing.T) {
	e := New("test-key", "text-embedding-3-small", time.Second, zerolog.Nop())
	vecs, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbed_OverBatchRejected(t *testing.T) {
	e := New("test-key", "text-embedding-3-small", time.Second, zerolog.Nop())
	fens := make([]string, MaxBatch+1)
	for i := range fens {
		fens[i] = "startpos"
	}
	_, err := e.Embed(context.Background(), fens)
	require.Error(t, err)
	assert.True(t, chesserr.Is(err, chesserr.BadInput))
}
