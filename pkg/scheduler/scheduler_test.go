package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serval-mesh/agent/pkg/servalerr"
)

// simulateTimeout forces an InProgress job's deadline into the past and
// runs a tick, mirroring the teacher's retry-then-fail scenario.
func simulateTimeout(t *testing.T, s *Scheduler, jobID string) {
	t.Helper()
	s.mu.Lock()
	j := s.findLocked(jobID)
	require.NotNil(t, j)
	require.Equal(t, StateInProgress, j.State.Tag)
	j.State.Deadline = time.Now().Add(-(MaxJobDuration + time.Second))
	s.tickLocked()
	s.mu.Unlock()
}

func TestEnqueueAndAssignLifecycle(t *testing.T) {
	s := New()

	job1, err := s.EnqueueJob("manifest1", strPtr("input1"), nil, OneOff(), PriorityNormal)
	require.NoError(t, err)
	job2, err := s.EnqueueJob("manifest2", nil, nil, OneOff(), PriorityNormal)
	require.NoError(t, err)

	assert.Len(t, s.ActiveJobs(), 2)
	assert.Len(t, s.FinishedJobs(), 0)
	_, ok := s.Job(job1)
	assert.True(t, ok)
	_, ok = s.Job(job2)
	assert.True(t, ok)

	// Tick with no runners: nothing should happen.
	s.mu.Lock()
	s.tickLocked()
	s.mu.Unlock()
	assert.Len(t, s.ActiveJobs(), 2)
	assert.Len(t, s.FinishedJobs(), 0)

	// Register a runner: job1 should be assigned to it.
	s.RegisterRunner("runner-1", nil)

	j1, ok := s.Job(job1)
	require.True(t, ok)
	assert.Equal(t, StateInProgress, j1.State.Tag)
	assert.Equal(t, "runner-1", j1.State.Runner)

	j2, ok := s.Job(job2)
	require.True(t, ok)
	assert.Equal(t, StateUnassigned, j2.State.Tag)

	require.NoError(t, s.MarkJobCompleted(job1, strPtr("output1")))

	err = s.MarkJobCompleted(job1, strPtr("output1"))
	assert.ErrorContains(t, err, string(servalerr.KindInvalidState))
	err = s.MarkJobFailed(job1, strPtr("output1"))
	assert.ErrorContains(t, err, string(servalerr.KindInvalidState))
}

// TestSchedulerRetryBound exercises spec property 4: three consecutive
// deadline expiries move a job to Failed, and a fourth runner
// registration must not pick it up again.
func TestSchedulerRetryBound(t *testing.T) {
	s := New()
	job, err := s.EnqueueJob("manifest2", nil, nil, OneOff(), PriorityNormal)
	require.NoError(t, err)

	for attempt := 0; attempt < MaxJobAttempts-1; attempt++ {
		j, _ := s.Job(job)
		assert.Equal(t, attempt, j.Attempts)

		s.RegisterRunner(runnerName(attempt), nil)

		j, _ = s.Job(job)
		assert.Equal(t, attempt+1, j.Attempts)
		assert.Equal(t, StateInProgress, j.State.Tag)

		simulateTimeout(t, s, job)

		j, _ = s.Job(job)
		assert.Equal(t, StateUnassigned, j.State.Tag)
	}

	j, _ := s.Job(job)
	assert.Equal(t, MaxJobAttempts-1, j.Attempts)

	finalRunner := "final-runner"
	s.RegisterRunner(finalRunner, nil)

	j, _ = s.Job(job)
	assert.Equal(t, MaxJobAttempts, j.Attempts)
	assert.Equal(t, StateInProgress, j.State.Tag)

	simulateTimeout(t, s, job)

	j, _ = s.Job(job)
	assert.Equal(t, StateFailed, j.State.Tag)
	assert.Equal(t, finalRunner, j.State.Runner)
	assert.Len(t, s.FinishedJobs(), 1)
	assert.Len(t, s.ActiveJobs(), 0)

	// A fresh runner registration must not resurrect the failed job.
	s.RegisterRunner("late-runner", nil)
	j, _ = s.Job(job)
	assert.Equal(t, StateFailed, j.State.Tag)
}

// TestSchedulerNoSameRunnerTwice exercises spec property 5: once a
// runner has been assigned a job, it is never assigned that job again,
// even if no other runner exists.
func TestSchedulerNoSameRunnerTwice(t *testing.T) {
	s := New()
	job, err := s.EnqueueJob("manifest3", nil, nil, OneOff(), PriorityNormal)
	require.NoError(t, err)

	s.RegisterRunner("runner-r", nil)
	j, _ := s.Job(job)
	require.Equal(t, "runner-r", j.State.Runner)

	simulateTimeout(t, s, job)
	j, _ = s.Job(job)
	require.Equal(t, StateUnassigned, j.State.Tag)

	// Re-register the same runner; the job must stay Unassigned since
	// runner-r already had its shot.
	s.RegisterRunner("runner-r", nil)
	j, _ = s.Job(job)
	assert.Equal(t, StateUnassigned, j.State.Tag)
}

func TestCapabilityMatching(t *testing.T) {
	s := New()
	job, err := s.EnqueueJob("manifest4", nil, []Requirement{RequireExtension("image-resize")}, OneOff(), PriorityNormal)
	require.NoError(t, err)

	s.RegisterRunner("runner-no-ext", nil)
	j, _ := s.Job(job)
	assert.Equal(t, StateUnassigned, j.State.Tag, "runner lacking the required extension must not be assigned")

	s.RegisterRunner("runner-with-ext", []Requirement{RequireExtension("image-resize")})
	j, _ = s.Job(job)
	assert.Equal(t, StateInProgress, j.State.Tag)
	assert.Equal(t, "runner-with-ext", j.State.Runner)
}

func TestPriorityOrdersAssignment(t *testing.T) {
	s := New()
	low, err := s.EnqueueJob("low", nil, nil, OneOff(), PriorityLowPriority)
	require.NoError(t, err)
	emergency, err := s.EnqueueJob("emergency", nil, nil, OneOff(), PriorityEmergency)
	require.NoError(t, err)

	s.RegisterRunner("only-runner", nil)

	jLow, _ := s.Job(low)
	jEmergency, _ := s.Job(emergency)
	assert.Equal(t, StateUnassigned, jLow.State.Tag)
	assert.Equal(t, StateInProgress, jEmergency.State.Tag)
}

func TestExtendJobDeadlineRequiresInProgress(t *testing.T) {
	s := New()
	job, err := s.EnqueueJob("manifest5", nil, nil, OneOff(), PriorityNormal)
	require.NoError(t, err)

	err = s.ExtendJobDeadline(job)
	assert.ErrorContains(t, err, string(servalerr.KindInvalidState))

	s.RegisterRunner("runner-x", nil)
	before, _ := s.Job(job)

	require.NoError(t, s.ExtendJobDeadline(job))
	after, _ := s.Job(job)
	assert.True(t, after.State.Deadline.After(before.State.Deadline) || after.State.Deadline.Equal(before.State.Deadline))
}

func TestUnknownJobOperations(t *testing.T) {
	s := New()
	_, ok := s.Job("does-not-exist")
	assert.False(t, ok)

	err := s.ExtendJobDeadline("does-not-exist")
	assert.ErrorContains(t, err, string(servalerr.KindNotFound))

	err = s.MarkJobCompleted("does-not-exist", nil)
	assert.ErrorContains(t, err, string(servalerr.KindNotFound))

	err = s.MarkJobFailed("does-not-exist", nil)
	assert.ErrorContains(t, err, string(servalerr.KindNotFound))
}

func TestClaimReturnsAssignedJob(t *testing.T) {
	s := New()
	job, err := s.EnqueueJob("manifest6", nil, nil, OneOff(), PriorityNormal)
	require.NoError(t, err)

	assigned, ok := s.Claim("runner-claim", nil)
	require.True(t, ok)
	assert.Equal(t, job, assigned.ID)

	_, ok = s.Claim("runner-idle", nil)
	assert.False(t, ok)
}

func runnerName(i int) string {
	return "runner-" + string(rune('a'+i))
}

func strPtr(s string) *string { return &s }
