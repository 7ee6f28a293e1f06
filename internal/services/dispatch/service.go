package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"deedbot/internal/recurrence"
	"deedbot/internal/storage"
	kit "deedbot/internal/transport"
	logx "deedbot/pkg/logx"
)

type Config struct {
	Workers     int           // default 2
	QueueSize   int           // default 64
	HistorySize int           // default 200
	MinimumLead time.Duration // passed to the scheduling core; default 1m
	SweepEvery  time.Duration // missed-reminder sweep interval; default 5m
	DigestAt    string        // "HH:MM" local time; empty disables the daily digest
}

// Notifier is the delivery side consumed by dispatch (see services/notify).
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type HistoryItem struct {
	ReminderID string
	ChatID     int64
	Title      string
	Due        time.Time
	Fired      time.Time
	Error      string
}

type job struct {
	id  string
	due time.Time
	ver uint64
}

type armed struct {
	timer *time.Timer
	ver   uint64
	due   time.Time
}

type Service struct {
	store  storage.Store
	notify Notifier
	log    logx.Logger

	mu  sync.Mutex
	cfg Config

	runCtx    context.Context
	runCancel context.CancelFunc
	stopCh    chan struct{}
	stopDone  chan struct{}
	queue     chan job
	workerWG  sync.WaitGroup
	c         *cron.Cron

	tmu    sync.Mutex
	timers map[string]*armed
	ver    uint64

	hmu     sync.Mutex
	history []HistoryItem

	// test seam
	now func() time.Time
}

func New(cfg Config, store storage.Store, notify Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store:  store,
		notify: notify,
		log:    log,
		timers: map[string]*armed{},
		now:    time.Now,
	}
	s.cfg = withDefaults(cfg)
	return s
}

func withDefaults(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	if cfg.MinimumLead <= 0 {
		cfg.MinimumLead = recurrence.DefaultMinimumLead
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 5 * time.Minute
	}
	return cfg
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	old := s.cfg
	s.cfg = withDefaults(cfg)
	var prev *cron.Cron
	if s.stopCh != nil && (old.SweepEvery != s.cfg.SweepEvery || old.DigestAt != s.cfg.DigestAt) {
		prev = s.startCronLocked()
	}
	s.mu.Unlock()
	if prev != nil {
		<-prev.Stop().Done()
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return nil
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.queue = make(chan job, s.cfg.QueueSize)

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue
	workers := s.cfg.Workers

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in dispatch worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}

	s.startCronLocked()
	s.mu.Unlock()

	n, err := s.rearmAll(ctx)
	if err != nil {
		s.log.Warn("initial arm failed", logx.Err(err))
	}
	s.log.Info("dispatch started", logx.Int("workers", workers), logx.Int("armed", n))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	c := s.c
	s.c = nil
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	s.tmu.Lock()
	for _, a := range s.timers {
		a.timer.Stop()
	}
	s.timers = map[string]*armed{}
	s.tmu.Unlock()

	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.queue = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("dispatch stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// startCronLocked starts a fresh sweep/digest cron and returns the previous
// one. Caller holds s.mu and must stop the returned cron after releasing it:
// an in-flight sweep re-enters s.mu through enqueue, so waiting for it here
// would wedge the service.
func (s *Service) startCronLocked() *cron.Cron {
	prev := s.c
	s.c = cron.New()
	sweep := s.cfg.SweepEvery
	if _, err := s.c.AddFunc(fmt.Sprintf("@every %s", sweep), func() { s.sweep() }); err != nil {
		s.log.Error("register sweep failed", logx.Err(err))
	}
	if at := s.cfg.DigestAt; at != "" {
		if tod, err := recurrence.ParseTimeOfDay(at); err != nil {
			s.log.Warn("invalid digest time, digest disabled", logx.String("digest_at", at), logx.Err(err))
		} else {
			spec := fmt.Sprintf("%d %d * * *", tod.Minute, tod.Hour)
			if _, err := s.c.AddFunc(spec, func() { s.digest() }); err != nil {
				s.log.Error("register digest failed", logx.Err(err))
			}
		}
	}
	s.c.Start()
	return prev
}

// Arm schedules (or reschedules) the one-time timer for a reminder.
// Paused reminders and reminders with no future occurrence are disarmed.
func (s *Service) Arm(r storage.Reminder) {
	if r.Paused || r.NextAt.IsZero() {
		s.Disarm(r.ID)
		return
	}
	now := s.now()
	delay := r.NextAt.Sub(now)
	if delay < 0 {
		delay = 0
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old, ok := s.timers[r.ID]; ok {
		old.timer.Stop()
	}
	s.ver++
	ver := s.ver
	id := r.ID
	due := r.NextAt
	a := &armed{ver: ver, due: due}
	a.timer = time.AfterFunc(delay, func() {
		s.fireIfCurrent(id, due, ver)
	})
	s.timers[id] = a
	s.log.Debug("reminder armed", logx.String("id", id), logx.Time("due", due), logx.Duration("in", delay))
}

func (s *Service) Disarm(id string) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if a, ok := s.timers[id]; ok {
		a.timer.Stop()
		delete(s.timers, id)
	}
}

// fireIfCurrent guards against stale timers: a re-Arm bumps the version,
// so a timer that fires after its reminder was rescheduled is a no-op.
func (s *Service) fireIfCurrent(id string, due time.Time, ver uint64) {
	s.tmu.Lock()
	a, ok := s.timers[id]
	current := ok && a.ver == ver
	if current {
		delete(s.timers, id)
	}
	s.tmu.Unlock()
	if !current {
		return
	}
	s.enqueue(job{id: id, due: due, ver: ver})
}

func (s *Service) enqueue(j job) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("dispatch not running; dropping fire", logx.String("id", j.id))
		return
	}
	select {
	case q <- j:
	default:
		s.log.Warn("dispatch queue full; dropping fire", logx.String("id", j.id), logx.Int("queue_cap", cap(q)))
	}
}

// Armed reports the due time currently armed for a reminder, if any.
func (s *Service) Armed(id string) (time.Time, bool) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	a, ok := s.timers[id]
	if !ok {
		return time.Time{}, false
	}
	return a.due, true
}

// History returns a copy of recent fires (newest last).
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(x HistoryItem) {
	s.mu.Lock()
	max := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, x)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}

func (s *Service) rearmAll(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	rs, err := s.store.ListReminders(ctx, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rs {
		if r.Paused {
			continue
		}
		s.Arm(r)
		n++
	}
	return n, nil
}
