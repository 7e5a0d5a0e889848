// Package scheduler implements the job scheduler state machine: jobs move
// from Unassigned to InProgress (bound to a runner and a deadline) to a
// terminal Completed or Failed state, with bounded retries and a
// no-repeat-runner invariant. A single tick procedure drives every
// transition and is invoked on enqueue, runner registration, and on a
// timer armed for the earliest InProgress deadline.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serval-mesh/agent/pkg/log"
	"github.com/serval-mesh/agent/pkg/servalerr"
)

// MaxJobDuration is the longest a runner may hold a job before the
// scheduler considers the attempt timed out.
const MaxJobDuration = 60 * time.Second

// MaxJobAttempts is the number of timed-out attempts a job tolerates
// before moving to Failed.
const MaxJobAttempts = 3

// idleInterval is how long the tick timer waits when no job is
// InProgress; short enough that newly registered runners or enqueued
// jobs are never stuck for long, long enough to avoid busy-looping.
const idleInterval = MaxJobDuration

// Priority orders jobs within the Assign phase of a tick: Emergency jobs
// are assigned before HighPriority, then Normal, then LowPriority.
type Priority int

const (
	PriorityEmergency Priority = iota
	PriorityHighPriority
	PriorityNormal
	PriorityLowPriority
)

// RequirementKind distinguishes the two constraints a job can place on a
// candidate runner.
type RequirementKind int

const (
	requirementExtension RequirementKind = iota
	requirementProc
)

// Requirement constrains which runners are eligible to execute a job.
// Values are comparable, so a runner's advertised capability set can be
// checked with a plain map lookup.
type Requirement struct {
	Kind RequirementKind
	Name string // extension name, when Kind == requirementExtension
}

// RequireExtension builds a requirement that a runner advertise the
// named host extension.
func RequireExtension(name string) Requirement {
	return Requirement{Kind: requirementExtension, Name: name}
}

// RequireProc builds a requirement that a runner have /proc available
// (i.e. is running on Linux).
func RequireProc() Requirement {
	return Requirement{Kind: requirementProc}
}

// JobKindTag distinguishes the three ways a job may be invoked.
type JobKindTag int

const (
	// KindOneOff runs the job on a single runner; one success suffices.
	KindOneOff JobKindTag = iota
	// KindMultiple runs the job across Runs distinct runners, serially,
	// until Runs successes accrue or Deadline passes.
	KindMultiple
	// KindCensus runs the job across every runner known at enqueue
	// time, serially, until all have run it or Deadline passes.
	KindCensus
)

// JobKind describes how a job should be distributed across runners. The
// tick assigns every job as it assigns KindOneOff: Runs, Deadline and
// Runners are not consulted, so KindMultiple and KindCensus jobs also run
// on a single runner.
type JobKind struct {
	Tag      JobKindTag
	Runs     int       // meaningful only for KindMultiple
	Deadline time.Time // meaningful for KindMultiple and KindCensus
	Runners  []string  // target runner set for KindMultiple/KindCensus
}

// OneOff builds the default job kind: run once, anywhere capable.
func OneOff() JobKind { return JobKind{Tag: KindOneOff} }

// StateTag names the state a ScheduledJob currently occupies.
type StateTag int

const (
	StateUnassigned StateTag = iota
	StateInProgress
	StateCompleted
	StateFailed
)

// JobState is the transient, lifecycle-scoped half of a ScheduledJob.
// Fields outside the active tag are meaningless and left zero.
type JobState struct {
	Tag StateTag

	// InProgress
	Runner   string
	Deadline time.Time

	// Completed / Failed
	CompletionTime time.Time
	Output         *string // integrity of the result blob, if any
}

// ScheduledJob is a job under active management by the scheduler. Fields
// that only matter during one phase of the lifecycle live in State
// instead of cluttering this struct.
type ScheduledJob struct {
	ID           string
	ManifestKey  string
	InputKey     *string
	State        JobState
	Attempts     int
	CreatedAt    time.Time
	Priority     Priority
	Requirements []Requirement
	Kind         JobKind
	// Runners records every runner that has ever been assigned this
	// job, so the Assign phase never retries the same runner twice.
	Runners []string
}

// Scheduler owns the active and finished job tables and the registered
// runner pool, all guarded by a single mutex. tick runs entirely under
// that lock; it must never block on network I/O.
type Scheduler struct {
	mu       sync.Mutex
	active   []*ScheduledJob
	finished []*ScheduledJob
	runners  map[string][]Requirement

	timer  *time.Timer
	stopCh chan struct{}
}

// New builds an empty Scheduler. Call Start to arm its background tick
// timer.
func New() *Scheduler {
	return &Scheduler{
		runners: make(map[string][]Requirement),
		stopCh:  make(chan struct{}),
	}
}

// Start arms the background timer that re-ticks the scheduler even when
// no enqueue or RegisterRunner call occurs, so expired jobs are reclaimed
// promptly.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.timer = time.NewTimer(idleInterval)
	s.mu.Unlock()

	go s.run()
}

// Stop halts the background timer goroutine. It does not touch the job
// tables.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	for {
		select {
		case <-s.timer.C:
			s.mu.Lock()
			s.tickLocked()
			s.mu.Unlock()
		case <-s.stopCh:
			if s.timer != nil {
				s.timer.Stop()
			}
			return
		}
	}
}

// Job returns the job with the given id, from either table.
func (s *Scheduler) Job(id string) (ScheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.findLocked(id)
	if j == nil {
		return ScheduledJob{}, false
	}
	return *j, true
}

func (s *Scheduler) findLocked(id string) *ScheduledJob {
	for _, j := range s.active {
		if j.ID == id {
			return j
		}
	}
	for _, j := range s.finished {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// EnqueueJob admits a new job in the Unassigned state and runs a tick
// immediately, so it may be assigned before this call returns if a
// capable runner is already registered.
func (s *Scheduler) EnqueueJob(manifestKey string, inputKey *string, requirements []Requirement, kind JobKind, priority Priority) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.active = append(s.active, &ScheduledJob{
		ID:           id,
		ManifestKey:  manifestKey,
		InputKey:     inputKey,
		State:        JobState{Tag: StateUnassigned},
		CreatedAt:    time.Now(),
		Priority:     priority,
		Requirements: requirements,
		Kind:         kind,
	})

	s.tickLocked()
	return id, nil
}

// RegisterRunner admits runner into the available pool (a no-op if it is
// already registered) with the given capabilities, then ticks.
func (s *Scheduler) RegisterRunner(runner string, capabilities []Requirement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runners[runner]; ok {
		return
	}
	s.runners[runner] = capabilities
	s.tickLocked()
}

// Claim registers runner (if not already registered) and returns the job
// it was assigned by the resulting tick, if any. This is the scheduler
// side of the runner-facing claim endpoint: a runner calls it to both
// announce availability and immediately learn what it should execute.
func (s *Scheduler) Claim(runner string, capabilities []Requirement) (ScheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runners[runner]; !ok {
		s.runners[runner] = capabilities
		s.tickLocked()
	}

	for _, j := range s.active {
		if j.State.Tag == StateInProgress && j.State.Runner == runner {
			return *j, true
		}
	}
	return ScheduledJob{}, false
}

// ExtendJobDeadline pushes an InProgress job's deadline to now +
// MaxJobDuration. It is the runner's heartbeat against the scheduler
// reclaiming its lease.
func (s *Scheduler) ExtendJobDeadline(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.findLocked(id)
	if j == nil {
		return servalerr.New(servalerr.KindNotFound, fmt.Sprintf("job %s not found", id))
	}
	if j.State.Tag != StateInProgress {
		return servalerr.New(servalerr.KindInvalidState, "extend_job_deadline requires an in-progress job")
	}
	j.State.Deadline = time.Now().Add(MaxJobDuration)
	return nil
}

// MarkJobCompleted transitions an InProgress job to Completed.
func (s *Scheduler) MarkJobCompleted(id string, output *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.findLocked(id)
	if j == nil {
		return servalerr.New(servalerr.KindNotFound, fmt.Sprintf("job %s not found", id))
	}
	if j.State.Tag != StateInProgress {
		return servalerr.New(servalerr.KindInvalidState, "mark_job_completed requires an in-progress job")
	}
	runner := j.State.Runner
	j.State = JobState{
		Tag:            StateCompleted,
		Runner:         runner,
		CompletionTime: time.Now(),
		Output:         output,
	}
	for i, a := range s.active {
		if a == j {
			s.active = append(s.active[:i], s.active[i+1:]...)
			s.finished = append(s.finished, j)
			break
		}
	}
	return nil
}

// MarkJobFailed transitions an InProgress job directly to Failed,
// bypassing the retry budget (a runner-reported failure is final).
func (s *Scheduler) MarkJobFailed(id string, output *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.findLocked(id)
	if j == nil {
		return servalerr.New(servalerr.KindNotFound, fmt.Sprintf("job %s not found", id))
	}
	if j.State.Tag != StateInProgress {
		return servalerr.New(servalerr.KindInvalidState, "mark_job_failed requires an in-progress job")
	}
	runner := j.State.Runner
	j.State = JobState{
		Tag:            StateFailed,
		Runner:         runner,
		CompletionTime: time.Now(),
		Output:         output,
	}
	for i, a := range s.active {
		if a == j {
			s.active = append(s.active[:i], s.active[i+1:]...)
			s.finished = append(s.finished, j)
			break
		}
	}
	return nil
}

// ActiveJobs returns a snapshot of every job not yet in a terminal state.
func (s *Scheduler) ActiveJobs() []ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledJob, len(s.active))
	for i, j := range s.active {
		out[i] = *j
	}
	return out
}

// FinishedJobs returns a snapshot of every job in a terminal state.
func (s *Scheduler) FinishedJobs() []ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledJob, len(s.finished))
	for i, j := range s.finished {
		out[i] = *j
	}
	return out
}

func couldRunnerExecute(capabilities []Requirement, job *ScheduledJob) bool {
	have := make(map[Requirement]bool, len(capabilities))
	for _, c := range capabilities {
		have[c] = true
	}
	for _, req := range job.Requirements {
		if !have[req] {
			return false
		}
	}
	return true
}

func hasRunner(runners []string, runner string) bool {
	for _, r := range runners {
		if r == runner {
			return true
		}
	}
	return false
}

// tickLocked is the single serialized procedure that advances every job:
// expire timed-out attempts, assign unassigned jobs to capable runners,
// then arm the timer for the earliest remaining deadline. Callers must
// hold s.mu.
func (s *Scheduler) tickLocked() {
	logger := log.WithComponent("scheduler")
	now := time.Now()

	// 1. Expire.
	var stillActive []*ScheduledJob
	for _, j := range s.active {
		if j.State.Tag == StateInProgress && j.State.Deadline.Before(now) {
			if j.Attempts < MaxJobAttempts {
				logger.Info().Str("job_id", j.ID).Msg("job took too long; returning to the work queue")
				j.State = JobState{Tag: StateUnassigned}
			} else {
				logger.Info().Str("job_id", j.ID).Msg("job failed too many times; giving up")
				runner := j.State.Runner
				j.State = JobState{Tag: StateFailed, Runner: runner, CompletionTime: now}
				s.finished = append(s.finished, j)
				continue
			}
		}
		stillActive = append(stillActive, j)
	}
	s.active = stillActive

	// 2. Assign. FIFO within priority tier, Emergency first.
	if len(s.runners) > 0 {
		var pending []*ScheduledJob
		for _, j := range s.active {
			if j.State.Tag == StateUnassigned {
				pending = append(pending, j)
			}
		}
		sortByPriorityFIFO(pending)

		deadline := now.Add(MaxJobDuration)
		for _, job := range pending {
			if len(s.runners) == 0 {
				break
			}
			for runner, capabilities := range s.runners {
				if !couldRunnerExecute(capabilities, job) {
					continue
				}
				if hasRunner(job.Runners, runner) {
					continue
				}

				logger.Info().Str("job_id", job.ID).Str("runner", runner).Msg("assigned job to runner")
				delete(s.runners, runner)

				job.Attempts++
				job.State = JobState{Tag: StateInProgress, Runner: runner, Deadline: deadline}
				job.Runners = append(job.Runners, runner)
				break
			}
		}
	}

	// 3. Schedule next tick no later than the earliest deadline still
	// outstanding.
	next := idleInterval
	haveDeadline := false
	for _, j := range s.active {
		if j.State.Tag == StateInProgress {
			until := time.Until(j.State.Deadline)
			if !haveDeadline || until < next {
				next = until
				haveDeadline = true
			}
		}
	}
	if next < 0 {
		next = 0
	}
	if s.timer != nil {
		if !s.timer.Stop() {
			select {
			case <-s.timer.C:
			default:
			}
		}
		s.timer.Reset(next)
	}
}

// sortByPriorityFIFO orders jobs by Priority ascending (Emergency=0 first)
// and preserves enqueue order within a tier (stable, and jobs already
// arrive in active-slice order).
func sortByPriorityFIFO(jobs []*ScheduledJob) {
	for i := 1; i < len(jobs); i++ {
		j := i
		for j > 0 && jobs[j-1].Priority > jobs[j].Priority {
			jobs[j-1], jobs[j] = jobs[j], jobs[j-1]
			j--
		}
	}
}
