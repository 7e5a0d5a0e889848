/*
Package scheduler implements the job scheduler state machine.

A ScheduledJob moves through four states:

	Unassigned ──(tick assigns)──► InProgress{runner, deadline}
	     ▲                               │
	     └──── deadline passed, ─────────┤
	           attempts < MaxJobAttempts │
	                                     ▼ attempts == MaxJobAttempts
	                                  Failed
	InProgress ──(runner reports success)──► Completed
	InProgress ──(runner reports failure)──► Failed

# Tick

A single serialized procedure, tick, drives every transition. It runs
under the Scheduler's mutex and must never block on network I/O. It is
invoked synchronously from EnqueueJob, RegisterRunner and Claim, and
asynchronously from a background timer armed for the earliest
outstanding InProgress deadline — so an expired job is reclaimed as soon
as its deadline passes, not on some fixed polling interval.

Each tick: (1) expires InProgress jobs past their deadline, returning
them to Unassigned if attempts remain or to Failed otherwise; (2) assigns
Unassigned jobs FIFO within priority tier to any registered runner whose
capabilities are a superset of the job's requirements and that has not
already been tried for this job; (3) rearms the timer.

# Usage

	s := scheduler.New()
	s.Start()
	defer s.Stop()

	id, _ := s.EnqueueJob(manifestKey, nil, nil, scheduler.OneOff(), scheduler.PriorityNormal)
	s.RegisterRunner("runner-1", nil)
	job, _ := s.Job(id) // now InProgress, assigned to runner-1
*/
package scheduler
