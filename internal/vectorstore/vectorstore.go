// Package vectorstore adapts chessmate's position embeddings to a Qdrant
// collection over its REST API. Qdrant's wire format is a thin JSON API
// with no client in this codebase's dependency pack, so the adapter
// speaks it directly over net/http rather than pulling in an unrelated
// client library.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/smilemakc/chessmate/internal/chesserr"
)

// HashID derives the stable point id for a FEN: two positions with
// identical FEN text hash to the same id and therefore share one point.
func HashID(fen string) string {
	h := fnv.New128a()
	_, _ = h.Write([]byte(fen))
	return hex.EncodeToString(h.Sum(nil))
}

// Payload keys §4.7 requires every point to carry.
type Payload struct {
	GameID      string  `json:"game_id"`
	WhiteName   string  `json:"white_name"`
	BlackName   string  `json:"black_name"`
	WhiteElo    *int    `json:"white_elo,omitempty"`
	BlackElo    *int    `json:"black_elo,omitempty"`
	OpeningSlug string  `json:"opening_slug"`
	ECOCode     string  `json:"eco_code"`
	Ply         int     `json:"ply"`
	Result      string  `json:"result"`
}

// Filter is a conjunction of equality and numeric-range predicates over
// payload keys.
type Filter struct {
	Equals map[string]any
	Ranges map[string]Range
}

// Range is an inclusive numeric bound; either side may be nil.
type Range struct {
	Gte *float64
	Lte *float64
}

// Hit is one similarity search result.
type Hit struct {
	ID      string
	Score   float64
	Payload Payload
}

// Store talks to one Qdrant collection.
type Store struct {
	baseURL    string
	collection string
	http       *http.Client
	timeout    time.Duration
	log        zerolog.Logger
}

// New constructs a Store against baseURL (e.g. http://localhost:6333),
// creating collection if it does not already exist is left to
// provisioning tooling; the adapter assumes it exists.
func New(baseURL, collection string, timeout time.Duration, log zerolog.Logger) *Store {
	return &Store{
		baseURL:    baseURL,
		collection: collection,
		http:       &http.Client{Timeout: timeout},
		timeout:    timeout,
		log:        log,
	}
}

// UpsertPoint is idempotent: upserting the same id twice with the same
// vector and payload overwrites in place.
func (s *Store) UpsertPoint(ctx context.Context, id string, vector []float32, payload Payload) error {
	body := map[string]any{
		"points": []map[string]any{
			{"id": id, "vector": vector, "payload": payload},
		},
	}
	_, err := s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points", s.collection), body)
	if err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	return nil
}

// Search runs a filtered k-NN search and returns up to limit hits with
// scores in [0,1], highest first.
func (s *Store) Search(ctx context.Context, queryVector []float32, filter Filter, limit int) ([]Hit, error) {
	body := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
		"filter":       encodeFilter(filter),
	}
	resp, err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.collection), body)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var decoded struct {
		Result []struct {
			ID      string  `json:"id"`
			Score   float64 `json:"score"`
			Payload Payload `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &decoded); err != nil {
		return nil, chesserr.Wrap(chesserr.Transient, "decode search response", err)
	}

	hits := make([]Hit, len(decoded.Result))
	for i, r := range decoded.Result {
		hits[i] = Hit{ID: r.ID, Score: r.Score, Payload: r.Payload}
	}
	return hits, nil
}

func encodeFilter(f Filter) map[string]any {
	var must []map[string]any
	for k, v := range f.Equals {
		must = append(must, map[string]any{"key": k, "match": map[string]any{"value": v}})
	}
	for k, r := range f.Ranges {
		rng := map[string]any{}
		if r.Gte != nil {
			rng["gte"] = *r.Gte
		}
		if r.Lte != nil {
			rng["lte"] = *r.Lte
		}
		must = append(must, map[string]any{"key": k, "range": rng})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func (s *Store) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, chesserr.Wrap(chesserr.Unavailable, "vector store request failed", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, chesserr.New(chesserr.Unavailable, fmt.Sprintf("vector store returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, chesserr.New(chesserr.BadInput, fmt.Sprintf("vector store rejected request: %d %s", resp.StatusCode, buf.String()))
	}
	return buf.Bytes(), nil
}
