// Package runner executes Wasm jobs directly against the local engine and
// storage façade, the domain logic behind the runner-role HTTP routes.
// It is the Go analogue of the original agent's job-handling state: a
// manifest lookup, a storage fetch, an engine invocation, and a small
// in-memory history of what ran.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serval-mesh/agent/pkg/log"
	"github.com/serval-mesh/agent/pkg/servalerr"
	"github.com/serval-mesh/agent/pkg/storage"
	"github.com/serval-mesh/agent/pkg/types"
)

// Engine is the subset of pkg/engine.Engine a Runner needs. Satisfied by
// *engine.Engine; narrowed to an interface so tests can substitute a
// fake instead of standing up a real wasmer-go sandbox.
type Engine interface {
	Execute(binary, stdin []byte, permissions []types.Permission) (types.WasmResult, error)
}

// Runner runs Wasm jobs on behalf of this node's runner role.
type Runner struct {
	storage *storage.Storage
	engine  Engine

	mu       sync.Mutex
	total    int64
	errors   int64
	inFlight map[string]types.JobMetadata
}

// New builds a Runner over the given storage façade and Wasm engine.
func New(st *storage.Storage, eng Engine) *Runner {
	return &Runner{
		storage:  st,
		engine:   eng,
		inFlight: make(map[string]types.JobMetadata),
	}
}

// RunManifest looks up the named manifest and its compiled executable,
// then runs it with the manifest's declared permissions.
func (r *Runner) RunManifest(ctx context.Context, fqName string, stdin []byte) (types.WasmResult, error) {
	manifest, err := r.storage.Manifest(ctx, fqName)
	if err != nil {
		return types.WasmResult{}, err
	}

	executable, err := r.storage.ExecutableBytes(ctx, fqName, manifest.Version)
	if err != nil {
		return types.WasmResult{}, err
	}

	id := r.begin(fqName)
	defer r.end(id)

	result, err := r.engine.Execute(executable, stdin, manifest.RequiredPermissions)
	r.record(err)
	return result, err
}

// RunStored runs a previously-stored blob directly, bypassing manifest
// lookup. It carries no declared permissions, matching the original's
// "fast hack" run_stored_job path: a raw binary has no manifest to
// source a permission list from.
func (r *Runner) RunStored(ctx context.Context, addr string, stdin []byte) (types.WasmResult, error) {
	binary, err := r.storage.DataByDigest(addr)
	if err != nil {
		return types.WasmResult{}, err
	}

	id := r.begin(addr)
	defer r.end(id)

	result, err := r.engine.Execute(binary, stdin, nil)
	r.record(err)
	return result, err
}

// History returns a snapshot of running totals and in-flight jobs.
func (r *Runner) History() types.RunnerHistory {
	r.mu.Lock()
	defer r.mu.Unlock()

	inFlight := make(map[string]types.JobMetadata, len(r.inFlight))
	for k, v := range r.inFlight {
		inFlight[k] = v
	}
	return types.RunnerHistory{Total: r.total, Errors: r.errors, InFlight: inFlight}
}

func (r *Runner) begin(name string) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.total++
	r.inFlight[id] = types.JobMetadata{ID: id, Name: name, SubmittedAt: time.Now()}
	r.mu.Unlock()
	log.WithComponent("runner").Info().Str("job_id", id).Str("name", name).Msg("starting job")
	return id
}

func (r *Runner) end(id string) {
	r.mu.Lock()
	delete(r.inFlight, id)
	r.mu.Unlock()
}

func (r *Runner) record(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
	log.WithComponent("runner").Warn().Err(err).Str("kind", string(servalerr.KindOf(err))).Msg("job failed")
}
