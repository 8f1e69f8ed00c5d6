// Package embedworker runs the Embedding Worker Pool: N cooperating
// loops that claim pending jobs, embed them in a batch, and commit the
// resulting vectors, modeled on the poll/trigger worker loop shape
// nornicdb's EmbedWorker uses for its own background embedding queue.
package embedworker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smilemakc/chessmate/internal/chesserr"
	"github.com/smilemakc/chessmate/internal/embedder"
	"github.com/smilemakc/chessmate/internal/storage"
	"github.com/smilemakc/chessmate/internal/vectorstore"
)

// Config controls pool size and cadence.
type Config struct {
	Workers        int
	BatchSize      int
	PollSleep      time.Duration
	InProgressTTL  time.Duration
}

// Pool runs Config.Workers cooperating claim/embed/commit loops.
type Pool struct {
	store    *storage.Store
	embed    embedder.Embedder
	vectors  *vectorstore.Store
	cfg      Config
	log      zerolog.Logger

	mu        sync.Mutex
	processed int
	failed    int
}

// New constructs a Pool. cfg.BatchSize is clamped to embedder.MaxBatch.
func New(store *storage.Store, embed embedder.Embedder, vectors *vectorstore.Store, cfg Config, log zerolog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > embedder.MaxBatch {
		cfg.BatchSize = embedder.MaxBatch
	}
	if cfg.PollSleep <= 0 {
		cfg.PollSleep = time.Second
	}
	if cfg.InProgressTTL <= 0 {
		cfg.InProgressTTL = 15 * time.Minute
	}
	return &Pool{store: store, embed: embed, vectors: vectors, cfg: cfg, log: log}
}

// Stats reports cumulative processed/failed counts across all loops.
type Stats struct {
	Processed int
	Failed    int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Processed: p.processed, Failed: p.failed}
}

// Run starts cfg.Workers loops and blocks until ctx is canceled. A
// janitor runs once at startup to reclaim jobs stuck in_progress past
// InProgressTTL, mirroring a crashed worker's unfinished batch.
func (p *Pool) Run(ctx context.Context) error {
	if n, err := p.store.ReclaimStale(ctx, p.cfg.InProgressTTL); err != nil {
		p.log.Error().Err(err).Msg("janitor reclaim failed")
	} else if n > 0 {
		p.log.Info().Int64("reclaimed", n).Msg("janitor reclaimed stale in_progress jobs")
	}

	if n, err := p.prunePendingAlreadyVectored(ctx); err != nil {
		p.log.Error().Err(err).Msg("janitor prune failed")
	} else if n > 0 {
		p.log.Info().Int64("flipped", n).Msg("janitor flipped stale pending jobs to completed")
	}

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Pool) loop(ctx context.Context, id int) {
	log := p.log.With().Int("worker", id).Logger()
	log.Info().Msg("embedding worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("embedding worker stopping")
			return
		default:
		}

		jobs, err := p.store.Claim(ctx, p.cfg.BatchSize)
		if err != nil {
			log.Error().Err(err).Msg("claim failed")
			sleep(ctx, p.cfg.PollSleep)
			continue
		}
		if len(jobs) == 0 {
			sleep(ctx, p.cfg.PollSleep)
			continue
		}

		p.processBatch(ctx, log, jobs)
	}
}

func (p *Pool) processBatch(ctx context.Context, log zerolog.Logger, jobs []storage.Job) {
	fens := make([]string, len(jobs))
	for i, j := range jobs {
		fens[i] = j.FEN
	}

	vectors, err := p.embed.Embed(ctx, fens)
	if err == nil && len(vectors) != len(jobs) {
		err = fmt.Errorf("embedder returned %d vectors for %d jobs", len(vectors), len(jobs))
	}
	if err != nil {
		log.Warn().Err(err).Int("batch", len(jobs)).Msg("batch embedding failed, retrying all jobs")
		retryable := !chesserr.Is(err, chesserr.BadInput)
		for _, j := range jobs {
			p.failJob(ctx, log, j, err, retryable)
		}
		return
	}

	for i, j := range jobs {
		p.commitJob(ctx, log, j, vectors[i])
	}
}

func (p *Pool) commitJob(ctx context.Context, log zerolog.Logger, job storage.Job, vector []float32) {
	vectorID := vectorstore.HashID(job.FEN)

	pc, err := p.store.PositionContextFor(ctx, job.PositionID)
	if err != nil {
		log.Error().Err(err).Str("job", job.ID).Msg("load position context failed")
		p.failJob(ctx, log, job, err, true)
		return
	}
	payload := vectorstore.Payload{
		GameID:      pc.GameID,
		WhiteName:   pc.WhiteName,
		BlackName:   pc.BlackName,
		WhiteElo:    pc.WhiteRating,
		BlackElo:    pc.BlackRating,
		OpeningSlug: pc.OpeningSlug,
		ECOCode:     pc.ECOCode,
		Ply:         pc.Ply,
		Result:      pc.Result,
	}

	if err := p.vectors.UpsertPoint(ctx, vectorID, vector, payload); err != nil {
		p.failJob(ctx, log, job, err, !chesserr.Is(err, chesserr.BadInput))
		return
	}
	if err := p.store.CompleteEmbedding(ctx, job.ID, job.PositionID, vectorID); err != nil {
		log.Error().Err(err).Str("job", job.ID).Msg("commit embedding failed")
		p.failJob(ctx, log, job, err, true)
		return
	}

	p.mu.Lock()
	p.processed++
	p.mu.Unlock()
}

func (p *Pool) failJob(ctx context.Context, log zerolog.Logger, job storage.Job, cause error, retryable bool) {
	if !retryable {
		if err := p.store.Fail(ctx, job.ID, job.Attempts+100, cause); err != nil {
			log.Error().Err(err).Str("job", job.ID).Msg("mark terminal failure failed")
		}
	} else if err := p.store.Fail(ctx, job.ID, job.Attempts, cause); err != nil {
		log.Error().Err(err).Str("job", job.ID).Msg("mark retry failed")
	}
	p.mu.Lock()
	p.failed++
	p.mu.Unlock()
}

// prunePendingAlreadyVectored settles jobs left pending by a re-ingest of
// a position that was already embedded, repeating in batches until the
// whole backlog is flipped.
func (p *Pool) prunePendingAlreadyVectored(ctx context.Context) (int64, error) {
	var total int64
	for {
		n, err := p.store.PruneCompletedAgainstPositions(ctx, p.cfg.BatchSize*10)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			return total, nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
