package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/chessmate/internal/chesserr"
	"github.com/smilemakc/chessmate/internal/domain"
	"github.com/smilemakc/chessmate/internal/hybrid"
	"github.com/smilemakc/chessmate/internal/opening"
	"github.com/smilemakc/chessmate/internal/query"
)

type fakeExecutor struct {
	result hybrid.Result
	err    error
}

func (f *fakeExecutor) Execute(ctx context.Context, plan domain.Plan) (hybrid.Result, error) {
	return f.result, f.err
}

type fakeFetcher struct{}

func (fakeFetcher) FetchGamesWithPGN(ctx context.Context, gameIDs []string) ([]domain.GameDetail, error) {
	return nil, nil
}

func newTestServer(exec *fakeExecutor) *Server {
	p := query.New(opening.New(), exec, fakeFetcher{}, nil, zerolog.Nop())
	return New(p, zerolog.Nop(), true)
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeExecutor{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestQuery_EmptyQuestionIsBadRequest(t *testing.T) {
	s := newTestServer(&fakeExecutor{})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(`{"question":""}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuery_Success(t *testing.T) {
	exec := &fakeExecutor{result: hybrid.Result{
		Results: []domain.ScoredResult{{Game: domain.GameSummary{GameID: "A"}, TotalScore: 0.9}},
	}}
	s := newTestServer(exec)
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(`{"question":"find sicilian games"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	results, ok := body["results"].([]interface{})
	require.True(t, ok)
	assert.Len(t, results, 1)
}

func TestQuery_UnavailableMapsTo503(t *testing.T) {
	exec := &fakeExecutor{err: chesserr.New(chesserr.Unavailable, "metadata store down")}
	s := newTestServer(exec)
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(`{"question":"find games"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
