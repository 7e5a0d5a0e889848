package metrics

import (
	"time"

	"github.com/serval-mesh/agent/pkg/mesh"
	"github.com/serval-mesh/agent/pkg/scheduler"
	"github.com/serval-mesh/agent/pkg/types"
)

// Collector periodically snapshots the scheduler and mesh into gauges,
// the way the teacher's Collector polls the cluster manager.
type Collector struct {
	scheduler *scheduler.Scheduler
	mesh      *mesh.Mesh
	stopCh    chan struct{}
}

// NewCollector builds a Collector over the given scheduler and mesh
// handle. Either may be nil, in which case the corresponding metrics are
// left unset.
func NewCollector(sched *scheduler.Scheduler, m *mesh.Mesh) *Collector {
	return &Collector{
		scheduler: sched,
		mesh:      m,
		stopCh:    make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15-second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectSchedulerMetrics()
	c.collectMeshMetrics()
}

func (c *Collector) collectSchedulerMetrics() {
	if c.scheduler == nil {
		return
	}

	var unassigned, inProgress float64
	for _, job := range c.scheduler.ActiveJobs() {
		switch job.State.Tag {
		case scheduler.StateUnassigned:
			unassigned++
		case scheduler.StateInProgress:
			inProgress++
		}
	}
	JobsActive.WithLabelValues("unassigned").Set(unassigned)
	JobsActive.WithLabelValues("in_progress").Set(inProgress)

	var completed, failed float64
	for _, job := range c.scheduler.FinishedJobs() {
		switch job.State.Tag {
		case scheduler.StateCompleted:
			completed++
		case scheduler.StateFailed:
			failed++
		}
	}
	JobsFinished.WithLabelValues("completed").Set(completed)
	JobsFinished.WithLabelValues("failed").Set(failed)
}

func (c *Collector) collectMeshMetrics() {
	if c.mesh == nil {
		return
	}

	roles := []types.Role{types.RoleScheduler, types.RoleRunner, types.RoleStorage, types.RoleObserver}
	for _, role := range roles {
		MeshPeersTotal.WithLabelValues(string(role)).Set(float64(len(c.mesh.PeersWithRole(role))))
	}
}
