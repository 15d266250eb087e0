package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"StockWatch/internal/engine"
	"StockWatch/internal/model"
	"StockWatch/internal/notifier"
	"StockWatch/internal/recorder"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sender delivers a formatted report. *notifier.TelegramNotifier satisfies it.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// EntrySource returns the watchlist to evaluate. It is called on every run so
// edits to the file take effect without a restart.
type EntrySource func() ([]model.WatchEntry, error)

// Scheduler runs the daily batch on a cron schedule and answers commands.
type Scheduler struct {
	Cron    *cron.Cron
	Batch   *engine.Batch
	Entries EntrySource
	Sender  Sender // nil disables notifications
	History recorder.Recorder
	Loc     *time.Location
	Ctx     context.Context
	log     *zap.Logger

	runMu   sync.Mutex
	mu      sync.RWMutex
	last    *model.BatchReport
	dailyID cron.EntryID
}

// NewScheduler creates a Scheduler whose cron runs in loc.
func NewScheduler(ctx context.Context, b *engine.Batch, entries EntrySource, sender Sender, loc *time.Location, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Batch:   b,
		Entries: entries,
		Sender:  sender,
		History: recorder.NewNoopRecorder(),
		Loc:     loc,
		Ctx:     ctx,
		log:     log,
	}
}

// Register adds the daily batch job. The expression has six fields, seconds first.
func (s *Scheduler) Register(dailyCron string) error {
	id, err := s.Cron.AddFunc(dailyCron, func() { s.RunNow() })
	if err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	s.dailyID = id
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started", zap.Time("next", s.Next()))
}

// Stop stops the cron scheduler and waits for a running job.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Next returns the next scheduled run, or zero if none is registered.
func (s *Scheduler) Next() time.Time {
	if s.dailyID == 0 {
		return time.Time{}
	}
	return s.Cron.Entry(s.dailyID).Next
}

// LastReport returns the most recent finished batch, or nil.
func (s *Scheduler) LastReport() *model.BatchReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// RunNow evaluates the watchlist and sends the report. A run already in
// progress makes this a no-op returning nil.
func (s *Scheduler) RunNow() *model.BatchReport {
	if !s.runMu.TryLock() {
		s.log.Warn("batch already running, skipping")
		return nil
	}
	defer s.runMu.Unlock()

	entries, err := s.Entries()
	if err != nil {
		s.log.Error("load watchlist", zap.Error(err))
		s.trySend(fmt.Sprintf("❌ watchlist could not be loaded: %s", err))
		return nil
	}

	report := s.Batch.Run(s.Ctx, entries)
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if s.History != nil {
		if err := s.History.RecordBatch(s.Ctx, report); err != nil {
			s.log.Error("record batch", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}
	s.trySend(notifier.FormatReport(report, s.Loc))
	return report
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(_ context.Context, command string) string {
	var name string
	if f := strings.Fields(command); len(f) > 0 {
		name = strings.ToLower(f[0])
	}
	switch name {
	case "/run":
		// the report itself is sent by RunNow
		if s.RunNow() == nil {
			return "a run is already in progress or the watchlist failed to load"
		}
		return ""
	case "/status":
		return notifier.FormatStatus(s.LastReport(), s.Next(), s.Loc)
	default:
		return "commands:\n/run - evaluate the watchlist now\n/status - last run summary"
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Sender == nil {
		return
	}
	if err := s.Sender.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.Error("send notification", zap.Error(err))
	}
}
