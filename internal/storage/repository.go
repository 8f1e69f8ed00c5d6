package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/chessmate/internal/chesserr"
	"github.com/smilemakc/chessmate/internal/domain"
	"github.com/smilemakc/chessmate/internal/storage/models"
)

// Repository implements the Metadata Repository: players, games, positions,
// and the search/fetch paths the Hybrid Executor relies on. db is
// bun.IDB rather than *bun.DB so the same methods work against a plain
// connection or a tx-scoped handle returned by WithTx.
type Repository struct {
	db bun.IDB
}

// NewRepository wraps db for chessmate's metadata access.
func NewRepository(db bun.IDB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a Repository whose statements run against tx, so the
// Ingestion Controller can compose player/game/position writes into one
// per-game transaction.
func (r *Repository) WithTx(tx bun.Tx) *Repository {
	return &Repository{db: tx}
}

// NewRepositoryTx is a Repository scoped directly to tx, for callers
// that never hold a non-transactional handle.
func NewRepositoryTx(tx bun.Tx) *Repository {
	return &Repository{db: tx}
}

// UpsertPlayer returns the existing player for (name, fedID), creating one
// if needed. A player is never mutated after insert except to raise
// peak, which only ever moves up via GREATEST.
func (r *Repository) UpsertPlayer(ctx context.Context, name, fedID string, peak *int) (*domain.Player, error) {
	m := &models.PlayerModel{Name: name, FedID: fedID, PeakRating: peak}
	_, err := r.db.NewInsert().
		Model(m).
		On("CONFLICT (name, fed_id) DO UPDATE").
		Set(`peak_rating = CASE
			WHEN players.peak_rating IS NULL THEN EXCLUDED.peak_rating
			WHEN EXCLUDED.peak_rating IS NULL THEN players.peak_rating
			ELSE GREATEST(players.peak_rating, EXCLUDED.peak_rating)
		END`).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("upsert player: %w", err)
	}
	return playerFromModel(m), nil
}

// InsertGame inserts a game row. A (white_id, black_id, event, round,
// played_on) collision whose stored PGN text is identical is reported as
// chesserr.DuplicateGame so the
// Ingestion Controller can skip it rather than fail the batch.
func (r *Repository) InsertGame(ctx context.Context, g *domain.Game) (string, error) {
	whiteID, err := uuid.Parse(g.WhiteID)
	if err != nil {
		return "", chesserr.Wrap(chesserr.BadInput, "invalid white player id", err)
	}
	blackID, err := uuid.Parse(g.BlackID)
	if err != nil {
		return "", chesserr.Wrap(chesserr.BadInput, "invalid black player id", err)
	}

	m := &models.GameModel{
		WhiteID:     whiteID,
		BlackID:     blackID,
		Event:       g.Event,
		Site:        g.Site,
		Round:       g.Round,
		PlayedOn:    g.PlayedOn,
		Result:      string(g.Result),
		ECOCode:     g.ECOCode,
		OpeningSlug: g.OpeningSlug,
		OpeningName: g.OpeningName,
		WhiteRating: g.WhiteRating,
		BlackRating: g.BlackRating,
		PGN:         g.PGN,
	}

	var existingID uuid.UUID
	err = r.db.NewSelect().
		Model((*models.GameModel)(nil)).
		Column("id").
		Where("white_id = ? AND black_id = ? AND event = ? AND round = ? AND played_on IS NOT DISTINCT FROM ? AND pgn = ?",
			whiteID, blackID, g.Event, g.Round, g.PlayedOn, g.PGN).
		Scan(ctx, &existingID)
	if err == nil {
		return "", chesserr.New(chesserr.DuplicateGame, "game already ingested")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("check duplicate game: %w", err)
	}

	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return "", fmt.Errorf("insert game: %w", err)
	}
	return m.ID.String(), nil
}

// InsertPositions inserts all plies of one game in a single transaction.
func (r *Repository) InsertPositions(ctx context.Context, gameID string, positions []domain.Position) error {
	id, err := uuid.Parse(gameID)
	if err != nil {
		return chesserr.Wrap(chesserr.BadInput, "invalid game id", err)
	}
	if len(positions) == 0 {
		return nil
	}

	rows := make([]*models.PositionModel, len(positions))
	for i, p := range positions {
		rows[i] = &models.PositionModel{
			GameID:     id,
			Ply:        p.Ply,
			MoveNumber: p.MoveNumber,
			SideToMove: string(p.SideToMove),
			SAN:        p.SAN,
			FEN:        p.FEN,
		}
	}

	if _, err := r.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert positions: %w", err)
	}
	return nil
}

// PositionIDs returns the ids bun assigned to rows inserted by
// InsertPositions, ordered by ply, so callers can enqueue embedding jobs
// against them.
func (r *Repository) PositionIDs(ctx context.Context, gameID string) ([]string, error) {
	id, err := uuid.Parse(gameID)
	if err != nil {
		return nil, chesserr.Wrap(chesserr.BadInput, "invalid game id", err)
	}
	var rows []models.PositionModel
	err = r.db.NewSelect().
		Model(&rows).
		Column("id").
		Where("game_id = ?", id).
		Order("ply ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list position ids: %w", err)
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID.String()
	}
	return ids, nil
}

// SetVectorID records the vector store point id an embedded position was
// upserted under.
func (r *Repository) SetVectorID(ctx context.Context, positionID, vectorID string) error {
	id, err := uuid.Parse(positionID)
	if err != nil {
		return chesserr.Wrap(chesserr.BadInput, "invalid position id", err)
	}
	_, err = r.db.NewUpdate().
		Model((*models.PositionModel)(nil)).
		Set("vector_id = ?", vectorID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set vector id: %w", err)
	}
	return nil
}

// PositionContext is the subset of a position's owning game needed to
// build a vector store payload at embed time.
type PositionContext struct {
	GameID      string
	Ply         int
	WhiteName   string
	BlackName   string
	WhiteRating *int
	BlackRating *int
	OpeningSlug string
	ECOCode     string
	Result      string
}

// PositionContextFor loads the payload fields the Embedding Worker Pool
// needs when upserting a position's vector, joining through the owning
// game and its players.
func (r *Repository) PositionContextFor(ctx context.Context, positionID string) (*PositionContext, error) {
	id, err := uuid.Parse(positionID)
	if err != nil {
		return nil, chesserr.Wrap(chesserr.BadInput, "invalid position id", err)
	}

	pos := &models.PositionModel{}
	if err := r.db.NewSelect().Model(pos).Where("pos.id = ?", id).Scan(ctx); err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}

	game := &models.GameModel{}
	err = r.db.NewSelect().
		Model(game).
		Relation("White").
		Relation("Black").
		Where("g.id = ?", pos.GameID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load owning game: %w", err)
	}

	pc := &PositionContext{
		GameID:      game.ID.String(),
		Ply:         pos.Ply,
		WhiteRating: game.WhiteRating,
		BlackRating: game.BlackRating,
		OpeningSlug: game.OpeningSlug,
		ECOCode:     game.ECOCode,
		Result:      game.Result,
	}
	if game.White != nil {
		pc.WhiteName = game.White.Name
	}
	if game.Black != nil {
		pc.BlackName = game.Black.Name
	}
	return pc, nil
}

// SearchParams is the metadata-only portion of a Plan translated into SQL
// predicates; the Hybrid Executor supplies this after intent analysis.
type SearchParams struct {
	Filters        []domain.Filter
	Rating         domain.RatingFilter
	Limit          int
	OverfetchRatio int // multiplies Limit before the vector rerank narrows it back down
}

// SearchGames applies metadata filters and returns up to
// Limit*OverfetchRatio candidates, most recent first.
func (r *Repository) SearchGames(ctx context.Context, params SearchParams) ([]domain.GameSummary, error) {
	q := r.db.NewSelect().
		Model((*models.GameModel)(nil)).
		Relation("White").
		Relation("Black")

	for _, f := range params.Filters {
		switch f.Field {
		case "opening":
			q = q.Where("g.opening_slug = ?", f.Value)
		case "eco_range":
			from, to, ok := splitRange(f.Value)
			if ok {
				q = q.Where("g.eco_code >= ? AND g.eco_code <= ?", from, to)
			}
		case "result":
			q = q.Where("g.result = ?", f.Value)
		}
	}
	if params.Rating.WhiteMin != nil {
		q = q.Where("g.white_rating >= ?", *params.Rating.WhiteMin)
	}
	if params.Rating.BlackMin != nil {
		q = q.Where("g.black_rating >= ?", *params.Rating.BlackMin)
	}
	if params.Rating.MaxRatingDelta != nil {
		q = q.Where("ABS(COALESCE(g.white_rating, 0) - COALESCE(g.black_rating, 0)) <= ?", *params.Rating.MaxRatingDelta)
	}

	limit := params.Limit
	if params.OverfetchRatio > 1 {
		limit *= params.OverfetchRatio
	}
	q = q.Order("g.played_on DESC NULLS LAST").Limit(limit)

	var rows []models.GameModel
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("search games: %w", err)
	}

	out := make([]domain.GameSummary, len(rows))
	for i, m := range rows {
		out[i] = summaryFromModel(&m)
	}
	return out, nil
}

// FetchGamesWithPGN loads full game text for the given ids, preserving the
// input order so rank-sensitive callers don't need to re-sort.
func (r *Repository) FetchGamesWithPGN(ctx context.Context, gameIDs []string) ([]domain.GameDetail, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(gameIDs))
	for _, s := range gameIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, chesserr.Wrap(chesserr.BadInput, "invalid game id", err)
		}
		ids = append(ids, id)
	}

	var rows []models.GameModel
	err := r.db.NewSelect().
		Model(&rows).
		Relation("White").
		Relation("Black").
		Where("g.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch games with pgn: %w", err)
	}

	byID := make(map[string]models.GameModel, len(rows))
	for _, m := range rows {
		byID[m.ID.String()] = m
	}

	out := make([]domain.GameDetail, 0, len(gameIDs))
	for _, id := range gameIDs {
		m, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, domain.GameDetail{
			GameSummary: summaryFromModel(&m),
			PGN:         m.PGN,
		})
	}
	return out, nil
}

func playerFromModel(m *models.PlayerModel) *domain.Player {
	return &domain.Player{
		ID:         m.ID.String(),
		Name:       m.Name,
		FedID:      m.FedID,
		PeakRating: m.PeakRating,
	}
}

func summaryFromModel(m *models.GameModel) domain.GameSummary {
	s := domain.GameSummary{
		GameID:      m.ID.String(),
		WhiteRating: m.WhiteRating,
		BlackRating: m.BlackRating,
		Event:       m.Event,
		OpeningSlug: m.OpeningSlug,
		OpeningName: m.OpeningName,
		ECOCode:     m.ECOCode,
		Result:      domain.Result(m.Result),
		PlayedOn:    m.PlayedOn,
	}
	if m.White != nil {
		s.WhiteName = m.White.Name
	}
	if m.Black != nil {
		s.BlackName = m.Black.Name
	}
	return s
}

func splitRange(v string) (from, to string, ok bool) {
	for i := 0; i < len(v); i++ {
		if v[i] == '-' && i > 0 && i < len(v)-1 {
			return v[:i], v[i+1:], true
		}
	}
	return "", "", false
}
