package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/chessmate/internal/chesserr"
)

func TestHashID_Deterministic(t *testing.T) {
	a := HashID("startpos")
	b := HashID("startpos")
	c := HashID("other")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestUpsertPoint_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/positions/points", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result": {"status": "acknowledged"}}`))
	}))
	defer srv.Close()

	s := New(srv.URL, "positions", time.Second, zerolog.Nop())
	err := s.UpsertPoint(context.Background(), "abc", []float32{0.1, 0.2}, Payload{GameID: "g1"})
	require.NoError(t, err)
}

func TestSearch_ParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotNil(t, body["filter"])
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result": [{"id": "p1", "score": 0.9, "payload": {"game_id": "g1", "ply": 4}}]}`))
	}))
	defer srv.Close()

	s := New(srv.URL, "positions", time.Second, zerolog.Nop())
	hits, err := s.Search(context.Background(), []float32{0.1}, Filter{Equals: map[string]any{"opening_slug": "ruy_lopez"}}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].ID)
	assert.Equal(t, 0.9, hits[0].Score)
	assert.Equal(t, "g1", hits[0].Payload.GameID)
}

func TestDo_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := New(srv.URL, "positions", time.Second, zerolog.Nop())
	err := s.UpsertPoint(context.Background(), "abc", []float32{0.1}, Payload{})
	require.Error(t, err)
	assert.True(t, chesserr.Is(err, chesserr.Unavailable))
}

func TestDo_ClientErrorIsBadInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad vector size"))
	}))
	defer srv.Close()

	s := New(srv.URL, "positions", time.Second, zerolog.Nop())
	err := s.UpsertPoint(context.Background(), "abc", []float32{0.1}, Payload{})
	require.Error(t, err)
	assert.True(t, chesserr.Is(err, chesserr.BadInput))
}
