// Package batch runs a plan of N images one after another through the
// attempt loop and publishes the run state while it does.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"aistudio/internal/attempt"
	"aistudio/internal/domain"
	"aistudio/internal/infra"
	"aistudio/internal/metrics"
	"aistudio/internal/stream"
)

// DefaultImageDelay is the pause between two images of a batch.
const DefaultImageDelay = 400 * time.Millisecond

const persistTimeout = 5 * time.Second

// Sinks receive batch activity on the sequencer goroutine. Every field is
// optional and callbacks must not block for long.
type Sinks struct {
	Progress  func(value int)
	Log       func(line string)
	ImageDone func(index int, outcome domain.AttemptOutcome)
	BatchDone func(outcomes []domain.AttemptOutcome)
}

// ReportWriter stores the summary of a finished batch.
type ReportWriter interface {
	WriteBatchReport(ctx context.Context, rec domain.BatchRecord) (string, error)
}

type Options struct {
	// ImageDelay is the pause between images. Zero selects the default; a
	// negative value disables it.
	ImageDelay     time.Duration
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
	Logger         *infra.Logger
	Sinks          Sinks
	// Repository and Reports are optional. Their failures are logged and
	// never affect the batch.
	Repository domain.BatchRepository
	Reports    ReportWriter
}

// Sequencer runs at most one batch at a time.
type Sequencer struct {
	loop       *attempt.Loop
	imageDelay time.Duration
	logger     *infra.Logger
	sinks      Sinks
	repo       domain.BatchRepository
	reports    ReportWriter
	now        func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup

	mu    sync.Mutex
	state domain.RunState
	last  *domain.BatchRecord
}

func New(opener stream.Opener, opts Options) *Sequencer {
	if opts.ImageDelay < 0 {
		opts.ImageDelay = 0
	} else if opts.ImageDelay == 0 {
		opts.ImageDelay = DefaultImageDelay
	}
	s := &Sequencer{
		imageDelay: opts.ImageDelay,
		logger:     infra.Component(opts.Logger, "batch"),
		sinks:      opts.Sinks,
		repo:       opts.Repository,
		reports:    opts.Reports,
		now:        time.Now,
		state:      domain.Idle(),
	}
	s.loop = attempt.New(opener, attempt.Options{
		RetryDelay: opts.RetryDelay,
		Timeout:    opts.AttemptTimeout,
		Logger:     opts.Logger,
		Hooks: attempt.Hooks{
			AttemptStarted: s.onAttempt,
			Progress:       s.onProgress,
			Log:            s.onLog,
		},
	})
	return s
}

// Start launches plan on its own goroutine and returns the batch ID. It
// returns domain.ErrBatchRunning without touching the active batch when one
// is already in flight. The batch lives as long as ctx.
func (s *Sequencer) Start(ctx context.Context, plan domain.BatchPlan) (string, error) {
	rec, err := s.acquire(plan)
	if err != nil {
		return "", err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx, rec, plan)
	}()
	return rec.ID, nil
}

// Run is the synchronous form of Start.
func (s *Sequencer) Run(ctx context.Context, plan domain.BatchPlan) ([]domain.AttemptOutcome, error) {
	rec, err := s.acquire(plan)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, rec, plan), nil
}

// Wait blocks until batches launched by Start have finished.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

// Snapshot returns a copy of the current run state.
func (s *Sequencer) Snapshot() domain.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Last returns the most recently finished batch, if any.
func (s *Sequencer) Last() (domain.BatchRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return domain.BatchRecord{}, false
	}
	rec := *s.last
	rec.Outcomes = append([]domain.AttemptOutcome(nil), s.last.Outcomes...)
	return rec, true
}

func (s *Sequencer) acquire(plan domain.BatchPlan) (*domain.BatchRecord, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if !s.running.CompareAndSwap(false, true) {
		metrics.RecordBatchStart(false)
		s.logger.Warn().Str("batch_id", s.Snapshot().BatchID).Msg("batch: start rejected, a batch is already running")
		return nil, domain.ErrBatchRunning
	}
	metrics.RecordBatchStart(true)
	metrics.SetBatchRunning(true)

	base := plan.Base.Normalize()
	payload, _ := json.Marshal(base)
	rec := &domain.BatchRecord{
		ID:          uuid.NewString(),
		Status:      domain.BatchStatusRunning,
		TotalImages: plan.TotalImages,
		MaxAttempts: plan.MaxAttempts.String(),
		BasePayload: payload,
		StartedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	s.state = domain.RunState{
		Running:     true,
		BatchID:     rec.ID,
		TotalImages: plan.TotalImages,
		LastPayload: base,
		StartedAt:   rec.StartedAt,
	}
	s.mu.Unlock()
	return rec, nil
}

func (s *Sequencer) execute(ctx context.Context, rec *domain.BatchRecord, plan domain.BatchPlan) []domain.AttemptOutcome {
	log := s.logger.With().Str("batch_id", rec.ID).Logger()
	base := plan.Base.Normalize()
	s.persist(ctx, "create", func(pctx context.Context) error { return s.repo.Create(pctx, rec) })

	log.Info().Int("total_images", plan.TotalImages).Str("max_attempts", plan.MaxAttempts.String()).
		Str("filename", base.Filename).Msg("batch: started")
	s.onLog(fmt.Sprintf("[INFO] batch %s started: %d image(s), %s attempt(s) each", rec.ID, plan.TotalImages, plan.MaxAttempts))
	if s.sinks.Progress != nil {
		s.sinks.Progress(0)
	}

	outcomes := make([]domain.AttemptOutcome, 0, plan.TotalImages)
	status := domain.BatchStatusCompleted
	for idx := 1; idx <= plan.TotalImages; idx++ {
		if ctx.Err() != nil {
			status = domain.BatchStatusAbandoned
			break
		}
		req := base.WithFilename(VariantFilename(base.Filename, idx))
		s.update(func(st *domain.RunState) {
			st.CurrentImageIndex = idx
			st.CurrentAttempt = 0
			st.Progress = 0
		})

		out := s.loop.Run(ctx, req, plan.MaxAttempts)
		outcomes = append(outcomes, out)
		metrics.RecordImage(out.OK)
		log.Info().Int("image", idx).Bool("ok", out.OK).Int("attempts", out.Attempts).
			Str("filename", out.Filename).Str("error", out.ErrorMessage).Msg("batch: image finished")
		s.persist(ctx, "record outcome", func(pctx context.Context) error {
			return s.repo.RecordOutcome(pctx, rec.ID, idx, out)
		})
		if s.sinks.ImageDone != nil {
			s.sinks.ImageDone(idx, out)
		}

		if idx < plan.TotalImages && !attempt.Wait(ctx, s.imageDelay) {
			status = domain.BatchStatusAbandoned
			break
		}
	}

	rec.Finish(status, outcomes, s.now().UTC())
	s.persist(ctx, "finish", func(pctx context.Context) error { return s.repo.Finish(pctx, rec) })
	if s.reports != nil {
		if path, err := s.reports.WriteBatchReport(context.WithoutCancel(ctx), *rec); err != nil {
			log.Error().Err(err).Msg("batch: write report")
		} else {
			log.Debug().Str("path", path).Msg("batch: report written")
		}
	}
	log.Info().Str("status", string(status)).Int("succeeded", rec.Succeeded).Int("failed", rec.Failed).Msg("batch: finished")

	s.mu.Lock()
	s.state = domain.Idle()
	s.last = rec
	s.mu.Unlock()
	s.running.Store(false)
	metrics.SetBatchRunning(false)

	if s.sinks.Progress != nil {
		s.sinks.Progress(0)
	}
	if s.sinks.BatchDone != nil {
		s.sinks.BatchDone(append([]domain.AttemptOutcome(nil), outcomes...))
	}
	return outcomes
}

// persist runs a repository write detached from ctx cancellation so an
// abandoned batch is still recorded.
func (s *Sequencer) persist(ctx context.Context, op string, fn func(context.Context) error) {
	if s.repo == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := fn(pctx); err != nil {
		s.logger.Error().Err(err).Str("op", op).Msg("batch: persist history")
	}
}

func (s *Sequencer) update(fn func(st *domain.RunState)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}

// onAttempt starts progress over: it always reflects the active attempt.
func (s *Sequencer) onAttempt(n int, req domain.GenerationRequest) {
	s.update(func(st *domain.RunState) {
		st.CurrentAttempt = n
		st.LastPayload = req
		st.Progress = 0
	})
	if s.sinks.Progress != nil {
		s.sinks.Progress(0)
	}
}

func (s *Sequencer) onProgress(v int) {
	s.update(func(st *domain.RunState) { st.Progress = v })
	if s.sinks.Progress != nil {
		s.sinks.Progress(v)
	}
}

func (s *Sequencer) onLog(line string) {
	if s.sinks.Log != nil {
		s.sinks.Log(line)
	}
}
