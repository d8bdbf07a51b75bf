package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"amble/internal/logging"
	"amble/internal/models"
	"amble/internal/store"
	"amble/internal/telemetry"
)

// ErrUnknownJob is returned by RunNow for a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// UserRun is what a job sees when it runs for one user.
type UserRun struct {
	UserKey string
	Profile *models.UserProfile // nil when the user has no profile yet
	Loc     *time.Location
	Now     time.Time
	Logger  *slog.Logger
}

// Job is a named per-user task with its trigger.
type Job struct {
	Name        string
	Description string
	Trigger     Trigger
	Run         func(ctx context.Context, u UserRun) error
}

// Locker makes a tick exclusive across instances.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) (bool, error)
}

// Options wires a JobScheduler. Locker and Metrics are optional.
type Options struct {
	Profiles   store.ProfileStore
	State      store.JobState
	Locker     Locker
	Metrics    *telemetry.Metrics
	Tick       time.Duration
	DefaultLoc *time.Location
	Now        func() time.Time
}

// JobScheduler evaluates every registered job for every user on each tick.
type JobScheduler struct {
	opts       Options
	jobs       map[string]*Job
	order      []string
	instanceID string

	cron    gocron.Scheduler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	inflight map[string]bool // job|user pairs currently running
	lastTick time.Time
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(opts Options) *JobScheduler {
	if opts.Tick <= 0 {
		opts.Tick = time.Minute
	}
	if opts.DefaultLoc == nil {
		opts.DefaultLoc = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		opts:       opts,
		jobs:       make(map[string]*Job),
		instanceID: uuid.New().String(),
		ctx:        ctx,
		cancel:     cancel,
		inflight:   make(map[string]bool),
	}
}

// Register adds a job to the scheduler
func (s *JobScheduler) Register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; !exists {
		s.order = append(s.order, job.Name)
	}
	s.jobs[job.Name] = job
	log.Printf("✅ [SCHEDULER] Registered job: %s (%s)", job.Name, job.Trigger)
}

// Start begins ticking. The tick runs in singleton mode so a slow tick is
// never overlapped by the next one.
func (s *JobScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	cs, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = cs.NewJob(
		gocron.DurationJob(s.opts.Tick),
		gocron.NewTask(func() {
			s.wg.Add(1)
			defer s.wg.Done()
			s.Tick(s.ctx)
		}),
		gocron.WithName("amble_tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cs.Shutdown()
		return fmt.Errorf("failed to register tick: %w", err)
	}

	s.cron = cs
	s.running = true
	cs.Start()
	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs, tick %v", len(s.jobs), s.opts.Tick)
	return nil
}

// Stop gracefully stops all jobs
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.running = false
	cs := s.cron
	s.cron = nil
	s.mu.Unlock()

	s.cancel()
	if err := cs.Shutdown(); err != nil {
		log.Printf("⚠️  [SCHEDULER] Shutdown error: %v", err)
	}
	s.wg.Wait()

	log.Println("✅ [SCHEDULER] Job scheduler stopped")
}

const tickLockKey = "amble:scheduler:tick"

// Tick evaluates every job for every user once.
func (s *JobScheduler) Tick(ctx context.Context) {
	now := s.opts.Now()

	if s.opts.Locker != nil {
		ok, err := s.opts.Locker.AcquireLock(ctx, tickLockKey, s.instanceID, s.opts.Tick)
		if err != nil {
			log.Printf("⚠️  [SCHEDULER] Tick lock unavailable, running unlocked: %v", err)
		} else if !ok {
			return
		} else {
			defer s.opts.Locker.ReleaseLock(context.WithoutCancel(ctx), tickLockKey, s.instanceID)
		}
	}

	users, err := s.opts.Profiles.ListUserKeys(ctx)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Failed to list users: %v", err)
		return
	}

	for _, job := range s.jobList() {
		for _, userKey := range users {
			if ctx.Err() != nil {
				return
			}
			s.runFor(ctx, job, userKey, now, false)
		}
	}

	s.mu.Lock()
	s.lastTick = now
	s.mu.Unlock()
}

// RunNow runs a job for every user immediately, ignoring its trigger.
func (s *JobScheduler) RunNow(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		log.Printf("⚠️  [SCHEDULER] Job '%s' not found", name)
		return 0, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	users, err := s.opts.Profiles.ListUserKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately for %d user(s)", name, len(users))
	now := s.opts.Now()
	var failed int
	for _, userKey := range users {
		if err := s.runFor(ctx, job, userKey, now, true); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return len(users), fmt.Errorf("job %s failed for %d of %d user(s)", name, failed, len(users))
	}
	return len(users), nil
}

// runFor evaluates and runs one job for one user. lastRun advances even
// when the job fails so a broken job cannot spin every tick.
func (s *JobScheduler) runFor(ctx context.Context, job *Job, userKey string, now time.Time, force bool) error {
	key := job.Name + "|" + userKey
	if !s.claim(key) {
		return nil
	}
	defer s.release(key)

	logger := logging.WithJob(job.Name, userKey)

	profile, err := s.opts.Profiles.GetProfile(ctx, userKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("profile lookup failed", "error", err)
	}
	if err != nil {
		profile = nil
	}
	loc := profile.Loc(s.opts.DefaultLoc)

	mark := now.UTC()
	if !force {
		last, hasRun, err := s.opts.State.LastRun(ctx, job.Name, userKey)
		if err != nil {
			logger.Error("could not read last run, skipping", "error", err)
			return err
		}
		var due bool
		if mark, due = job.Trigger.Due(now, loc, last, hasRun); !due {
			return nil
		}
	}

	runErr := job.Run(ctx, UserRun{UserKey: userKey, Profile: profile, Loc: loc, Now: now, Logger: logger})
	result := "success"
	if runErr != nil {
		result = "error"
		logger.Error("job failed", "error", runErr)
	} else {
		logger.Debug("job completed")
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.JobRuns.WithLabelValues(job.Name, result).Inc()
	}

	// Recorded even when the tick context was cancelled mid-run, so a restart
	// does not repeat a job whose alert already went out.
	if err := s.opts.State.SetLastRun(context.WithoutCancel(ctx), job.Name, userKey, mark); err != nil {
		logger.Error("could not record last run", "error", err)
	}
	return runErr
}

func (s *JobScheduler) claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key] {
		return false
	}
	s.inflight[key] = true
	return true
}

func (s *JobScheduler) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

func (s *JobScheduler) jobList() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.jobs[name])
	}
	return out
}

// GetStatus returns the status of all jobs, sorted by name.
func (s *JobScheduler) GetStatus() []JobStatus {
	now := s.opts.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make([]JobStatus, 0, len(s.jobs))
	for name, job := range s.jobs {
		running := false
		for key := range s.inflight {
			if len(key) > len(name) && key[:len(name)+1] == name+"|" {
				running = true
				break
			}
		}
		status = append(status, JobStatus{
			Name:        name,
			Description: job.Description,
			Schedule:    job.Trigger.String(),
			NextRunTime: job.Trigger.Next(now, s.opts.DefaultLoc).UTC(),
			Running:     running,
			LastTick:    s.lastTick,
			Scheduler:   s.running,
		})
	}
	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Schedule    string    `json:"schedule"`
	NextRunTime time.Time `json:"next_run_time"`
	Running     bool      `json:"running"`
	LastTick    time.Time `json:"last_tick"`
	Scheduler   bool      `json:"scheduler_running"`
}
