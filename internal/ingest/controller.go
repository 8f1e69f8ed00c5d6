// Package ingest drives one PGN file through the pipeline: parse, upsert
// players, insert the game and its positions, and enqueue an embedding
// job per position, one transaction per game.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/smilemakc/chessmate/internal/chess"
	"github.com/smilemakc/chessmate/internal/chess/pgn"
	"github.com/smilemakc/chessmate/internal/chesserr"
	"github.com/smilemakc/chessmate/internal/domain"
	"github.com/smilemakc/chessmate/internal/opening"
	"github.com/smilemakc/chessmate/internal/storage"
)

// Result summarizes one ingest run.
type Result struct {
	GamesCommitted int
	GamesSkipped   int
	PositionsAdded int
}

// Controller wires the PGN Parser, Opening Catalogue, Metadata
// Repository, and Job Queue together for one ingest run.
type Controller struct {
	db         *bun.DB
	catalogue  *opening.Catalogue
	maxPending int
	log        zerolog.Logger
	onCommit   func(gameID string, positions int)
}

// New constructs a Controller. maxPending is
// CHESSMATE_MAX_PENDING_EMBEDDINGS; <= 0 disables admission control.
func New(db *bun.DB, catalogue *opening.Catalogue, maxPending int, log zerolog.Logger) *Controller {
	return &Controller{db: db, catalogue: catalogue, maxPending: maxPending, log: log}
}

// OnCommit registers fn to run after each game is committed, with the
// new game's id and the number of positions inserted for it.
func (c *Controller) OnCommit(fn func(gameID string, positions int)) {
	c.onCommit = fn
}

// Ingest reads r as a PGN stream and commits one transaction per game.
// It returns chesserr.QueueSaturated once admission control trips,
// reporting the games already committed before the abort.
func (c *Controller) Ingest(ctx context.Context, r io.Reader) (Result, error) {
	var result Result
	var aborted error

	err := pgn.ParseAll(r, func(g *pgn.Game, perGameErr error) {
		if aborted != nil {
			return
		}
		if perGameErr != nil {
			if chesserr.Is(perGameErr, chesserr.NoMoves) || chesserr.Is(perGameErr, chesserr.IllegalMove) {
				c.log.Warn().Err(perGameErr).Msg("skipping unparseable game")
				result.GamesSkipped++
				return
			}
			aborted = perGameErr
			return
		}

		gameID, added, err := c.commitGame(ctx, g)
		if err != nil {
			if errors.Is(err, errQueueSaturated) {
				aborted = chesserr.New(chesserr.QueueSaturated, "embedding job queue saturated")
				return
			}
			if chesserr.Is(err, chesserr.DuplicateGame) {
				c.log.Info().Msg("skipping duplicate game")
				result.GamesSkipped++
				return
			}
			aborted = fmt.Errorf("commit game: %w", err)
			return
		}
		if c.onCommit != nil {
			c.onCommit(gameID, added)
		}
		result.GamesCommitted++
		result.PositionsAdded += added
	})
	if err != nil {
		return result, err
	}
	if aborted != nil {
		return result, aborted
	}
	return result, nil
}

var errQueueSaturated = errors.New("queue saturated")

// commitGame runs the per-game transaction: admission check, player
// upsert, game insert, position insert, job enqueue. It returns the
// committed game's id alongside the position count.
func (c *Controller) commitGame(ctx context.Context, g *pgn.Game) (string, int, error) {
	added := 0
	committedID := ""

	err := c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo := storage.NewRepositoryTx(tx)
		queue := storage.NewJobQueueTx(tx, 0)

		if c.maxPending > 0 {
			counts, err := queue.CountByStatus(ctx)
			if err != nil {
				return fmt.Errorf("count jobs by status: %w", err)
			}
			if counts["pending"] > c.maxPending {
				return errQueueSaturated
			}
		}

		whiteRating := parseRating(g.Tags["WhiteElo"])
		blackRating := parseRating(g.Tags["BlackElo"])

		white, err := repo.UpsertPlayer(ctx, g.Tags["White"], g.Tags["FIDEIdWhite"], whiteRating)
		if err != nil {
			return fmt.Errorf("upsert white player: %w", err)
		}
		black, err := repo.UpsertPlayer(ctx, g.Tags["Black"], g.Tags["FIDEIdBlack"], blackRating)
		if err != nil {
			return fmt.Errorf("upsert black player: %w", err)
		}

		ecoCode := g.Tags["ECO"]
		openingSlug := c.catalogue.SlugForECO(ecoCode)
		openingName := ""
		if e, ok := c.catalogue.Entry(openingSlug); ok {
			openingName = e.Name
		}

		gameID, err := repo.InsertGame(ctx, &domain.Game{
			WhiteID:     white.ID,
			BlackID:     black.ID,
			Event:       g.Tags["Event"],
			Site:        g.Tags["Site"],
			Round:       g.Tags["Round"],
			PlayedOn:    parseDate(g.Tags["Date"]),
			Result:      domain.Result(g.Result),
			ECOCode:     ecoCode,
			OpeningSlug: openingSlug,
			OpeningName: openingName,
			WhiteRating: whiteRating,
			BlackRating: blackRating,
			PGN:         renderPGN(g),
		})
		if err != nil {
			return err
		}

		positions := make([]domain.Position, len(g.Plies))
		for i, ply := range g.Plies {
			positions[i] = domain.Position{
				GameID:     gameID,
				Ply:        ply.Index,
				MoveNumber: ply.MoveNumber,
				SideToMove: domain.Side(ply.Side.String()),
				SAN:        ply.SAN,
				FEN:        ply.FEN,
			}
		}
		if err := repo.InsertPositions(ctx, gameID, positions); err != nil {
			return fmt.Errorf("insert positions: %w", err)
		}

		positionIDs, err := repo.PositionIDs(ctx, gameID)
		if err != nil {
			return fmt.Errorf("list inserted position ids: %w", err)
		}
		for i, positionID := range positionIDs {
			if err := queue.Enqueue(ctx, positionID, positions[i].FEN); err != nil {
				return fmt.Errorf("enqueue embedding job: %w", err)
			}
		}

		added = len(positions)
		committedID = gameID
		return nil
	})
	return committedID, added, err
}

// parseDate parses a PGN [Date "YYYY.MM.DD"] tag. PGN allows unknown
// components as "??" (e.g. "2024.??.??"); any such game returns nil
// rather than a partial date.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006.01.02", s)
	if err != nil {
		return nil
	}
	return &t
}

func parseRating(s string) *int {
	if s == "" {
		return nil
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil
		}
		n = n*10 + int(r-'0')
	}
	return &n
}

// renderPGN reconstructs the PGN text chessmate stores for duplicate
// detection and later agent re-ranking: tag pairs followed by movetext.
func renderPGN(g *pgn.Game) string {
	out := ""
	for _, key := range []string{"Event", "Site", "Date", "Round", "White", "Black", "Result", "ECO", "WhiteElo", "BlackElo"} {
		if v, ok := g.Tags[key]; ok {
			out += fmt.Sprintf("[%s \"%s\"]\n", key, v)
		}
	}
	out += "\n"
	for _, ply := range g.Plies {
		if ply.Side == chess.White {
			out += fmt.Sprintf("%d. %s ", ply.MoveNumber, ply.SAN)
		} else {
			out += ply.SAN + " "
		}
	}
	out += g.Result
	return out
}
