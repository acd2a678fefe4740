package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"gamefinder/internal/core/domain"
	"gamefinder/internal/core/ports"
)

// Options are the run-level knobs of the Orchestrator.
type Options struct {
	ConcurrencyLimit int // simultaneous in-flight work units
	FlushBatchSize   int // completed units between players flushes
	Criteria         Criteria
}

// Orchestrator coordinates the fetch pipeline for one run.
type Orchestrator struct {
	source   ports.UsernameSource
	tokens   ports.TokenProvider
	platform ports.Platform
	players  ports.PlayerSink
	links    ports.LinkSink
	opts     Options
	logger   *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	source ports.UsernameSource,
	tokens ports.TokenProvider,
	platform ports.Platform,
	players ports.PlayerSink,
	links ports.LinkSink,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if opts.ConcurrencyLimit < 1 {
		opts.ConcurrencyLimit = 1
	}
	if opts.FlushBatchSize < 1 {
		opts.FlushBatchSize = 1
	}
	return &Orchestrator{
		source:   source,
		tokens:   tokens,
		platform: platform,
		players:  players,
		links:    links,
		opts:     opts,
		logger:   logger,
	}
}

// unitResult is what a work unit hands back to the collector.
type unitResult struct {
	row      domain.InputRow
	resolved bool
	match    domain.MatchResult
	failures []domain.FailureReason
}

// Run executes INIT → AUTH → DISPATCH → DRAIN → DONE. Input and auth
// failures abort before any fetch. Cancellation aborts the run, keeping
// batches already written and discarding the unflushed buffer.
func (o *Orchestrator) Run(ctx context.Context) (*domain.RunResult, error) {
	result := &domain.RunResult{
		RunID:     uuid.New().String(),
		State:     domain.StateInit,
		Failures:  make(map[domain.FailureReason]int),
		StartedAt: time.Now().UTC(),
	}
	logger := o.logger.With(slog.String("run", result.RunID))

	abort := func(err error) (*domain.RunResult, error) {
		logger.Error("run aborted", slog.String("state", string(result.State)), slog.Any("error", err))
		result.State = domain.StateAborted
		result.FinishedAt = time.Now().UTC()
		return result, err
	}
	enter := func(s domain.RunState) {
		result.State = s
		logger.Info("entering state", slog.String("state", string(s)))
	}

	enter(domain.StateInit)
	table, err := o.source.Load(ctx)
	if err != nil {
		return abort(err)
	}
	rows := uniqueRows(table.Rows)
	result.InputRows = len(table.Rows)
	result.Unique = len(rows)
	logger.Info("loaded usernames", slog.Int("rows", result.InputRows), slog.Int("unique", result.Unique))

	enter(domain.StateAuth)
	token, err := o.tokens.Token(ctx)
	if err != nil {
		return abort(err)
	}

	enter(domain.StateDispatch)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan unitResult)
	admitted := make(chan int, 1)
	go o.dispatch(runCtx, token, rows, results, admitted)

	agg := &aggregate{header: table.Header}
	var sinkErr error
	completed := 0

	for results != nil {
		select {
		case n := <-admitted:
			result.Dispatched = n
			admitted = nil
			enter(domain.StateDrain)
		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			if sinkErr != nil || runCtx.Err() != nil {
				continue
			}
			completed++
			o.record(result, res)
			agg.merge(res)
			logger.Debug("checked user",
				slog.String("username", res.row.Username),
				slog.Bool("qualifies", res.match.Qualifies),
				slog.Int("done", completed),
				slog.Int("total", len(rows)),
			)
			if completed%o.opts.FlushBatchSize == 0 {
				if err := o.flush(runCtx, agg, result, logger); err != nil {
					sinkErr = err
					cancel()
				}
			}
		}
	}
	if admitted != nil {
		result.Dispatched = <-admitted
	}

	if sinkErr != nil {
		return abort(sinkErr)
	}
	if err := ctx.Err(); err != nil {
		logger.Warn("discarding unflushed rows", slog.Int("rows", len(agg.pending)))
		return abort(fmt.Errorf("run cancelled: %w", err))
	}

	if err := o.flush(ctx, agg, result, logger); err != nil {
		return abort(err)
	}

	links := agg.links()
	if len(links) > 0 {
		if err := o.links.WriteLinks(ctx, links); err != nil {
			return abort(fmt.Errorf("failed to write links: %w", err))
		}
	} else {
		logger.Info("no clips or videos found")
	}

	result.State = domain.StateDone
	result.FinishedAt = time.Now().UTC()
	logger.Info("run completed",
		slog.Int("dispatched", result.Dispatched),
		slog.Int("resolved", result.Resolved),
		slog.Int("qualifying", result.Qualifying),
		slog.Int("clip_links", result.ClipLinks),
		slog.Int("video_links", result.VideoLinks),
		slog.Int("batches", result.Batches),
		slog.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

// dispatch admits one unit per row through the counting gate. It reports the
// number of admitted units on admitted, then closes out once every admitted
// unit has finished.
func (o *Orchestrator) dispatch(ctx context.Context, token string, rows []domain.InputRow, out chan<- unitResult, admitted chan<- int) {
	gate := semaphore.NewWeighted(int64(o.opts.ConcurrencyLimit))
	var wg sync.WaitGroup

	n := 0
	for _, row := range rows {
		if err := gate.Acquire(ctx, 1); err != nil {
			break
		}
		n++
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := o.runUnit(ctx, token, row)
			gate.Release(1)
			select {
			case out <- res:
			case <-ctx.Done():
			}
		}()
	}
	admitted <- n

	wg.Wait()
	close(out)
}

// runUnit resolves the user, then fetches videos and clips concurrently.
// An unresolved user never triggers the list calls.
func (o *Orchestrator) runUnit(ctx context.Context, token string, row domain.InputRow) unitResult {
	res := unitResult{row: row, match: domain.MatchResult{Username: row.Username}}

	id := o.platform.ResolveUserID(ctx, token, row.Username)
	if !id.OK() {
		res.failures = append(res.failures, id.Failure)
		return res
	}
	res.resolved = true

	var (
		videos domain.Outcome[[]domain.VideoRecord]
		clips  domain.Outcome[[]domain.ClipRecord]
		g      errgroup.Group
	)
	g.Go(func() error {
		videos = o.platform.ListVideos(ctx, token, id.Value)
		return nil
	})
	g.Go(func() error {
		clips = o.platform.ListClips(ctx, token, id.Value)
		return nil
	})
	_ = g.Wait()

	if !videos.OK() {
		res.failures = append(res.failures, videos.Failure)
	}
	if !clips.OK() {
		res.failures = append(res.failures, clips.Failure)
	}

	res.match = Evaluate(row.Username, clips.Value, videos.Value, o.opts.Criteria)
	return res
}

func (o *Orchestrator) record(result *domain.RunResult, res unitResult) {
	for _, f := range res.failures {
		result.Failures[f]++
	}
	if res.resolved {
		result.Resolved++
	}
	if res.match.Qualifies {
		result.Qualifying++
	}
	result.ClipLinks += len(res.match.Clips)
	result.VideoLinks += len(res.match.Videos)
}

// flush writes the pending qualifying rows, if any, and clears the buffer.
func (o *Orchestrator) flush(ctx context.Context, agg *aggregate, result *domain.RunResult, logger *slog.Logger) error {
	if len(agg.pending) == 0 {
		return nil
	}
	batch := agg.takePending()
	if err := o.players.WritePlayers(ctx, agg.header, batch); err != nil {
		return fmt.Errorf("failed to write players batch %d: %w", result.Batches+1, err)
	}
	result.Batches++
	logger.Info("batch written", slog.Int("batch", result.Batches), slog.Int("records", len(batch)))
	return nil
}

// aggregate is owned by the collector loop of Run; nothing else touches it.
type aggregate struct {
	header  []string
	pending []domain.InputRow
	clips   []indexedLink
	videos  []indexedLink
}

type indexedLink struct {
	index int
	link  domain.ContentLink
}

func (a *aggregate) merge(res unitResult) {
	if !res.match.Qualifies {
		return
	}
	a.pending = append(a.pending, res.row)
	for _, l := range res.match.Clips {
		a.clips = append(a.clips, indexedLink{index: res.row.Index, link: l})
	}
	for _, l := range res.match.Videos {
		a.videos = append(a.videos, indexedLink{index: res.row.Index, link: l})
	}
}

// takePending returns the buffered rows in input order and clears the buffer.
func (a *aggregate) takePending() []domain.InputRow {
	batch := a.pending
	a.pending = nil
	slices.SortStableFunc(batch, func(x, y domain.InputRow) int { return x.Index - y.Index })
	return batch
}

// links returns clip links then video links, each in input order.
func (a *aggregate) links() []domain.ContentLink {
	byIndex := func(x, y indexedLink) int { return x.index - y.index }
	slices.SortStableFunc(a.clips, byIndex)
	slices.SortStableFunc(a.videos, byIndex)

	out := make([]domain.ContentLink, 0, len(a.clips)+len(a.videos))
	for _, l := range a.clips {
		out = append(out, l.link)
	}
	for _, l := range a.videos {
		out = append(out, l.link)
	}
	return out
}

// uniqueRows keeps the first row for each username and drops blank ones.
func uniqueRows(rows []domain.InputRow) []domain.InputRow {
	seen := make(map[string]bool, len(rows))
	out := make([]domain.InputRow, 0, len(rows))
	for _, row := range rows {
		if row.Username == "" || seen[row.Username] {
			continue
		}
		seen[row.Username] = true
		out = append(out, row)
	}
	return out
}
