package autoscan

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
)

// jobHandle is the registry entry for one job. mu serializes every mutation of
// job and the control flags; persistMu orders store writes so a later snapshot
// never lands before an earlier one, and guards stored and deleted.
type jobHandle struct {
	mu  sync.Mutex
	job *domain.Job

	pauseRequested  bool
	cancelRequested bool

	persistMu sync.Mutex
	// stored is the status of the last snapshot the store acknowledged.
	stored domain.JobStatus
	// deleted is set once the job's record is removed; no write follows it.
	deleted bool
}

// snapshot returns a copy of the job that is safe to hand to readers.
func (h *jobHandle) snapshot() *domain.Job {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.job.Clone()
}

func (h *jobHandle) status() domain.JobStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.job.Status()
}

// registry is the process local index of known jobs, by id and by workspace.
// Lock order is registry.mu before jobHandle.mu; code holding a handle lock
// never calls back into the registry.
type registry struct {
	mu          sync.RWMutex
	jobs        map[uuid.UUID]*jobHandle
	byWorkspace map[string]uuid.UUID
}

func newRegistry() *registry {
	return &registry{
		jobs:        make(map[uuid.UUID]*jobHandle),
		byWorkspace: make(map[string]uuid.UUID),
	}
}

// reserve registers a new job and claims its workspace. It fails with a
// ConflictError when the workspace's current job is not terminal. The check and
// the insert happen under one write lock so concurrent starts cannot both win.
// The workspace's previous job id is returned for release.
func (r *registry) reserve(job *domain.Job) (*jobHandle, uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, ok := r.byWorkspace[job.WorkspaceID()]
	if ok {
		if h, ok := r.jobs[previous]; ok && !h.status().IsTerminal() {
			return nil, uuid.Nil, &domain.ConflictError{WorkspaceID: job.WorkspaceID(), ActiveJobID: previous}
		}
	}

	h := &jobHandle{job: job}
	r.jobs[job.JobID()] = h
	r.byWorkspace[job.WorkspaceID()] = job.JobID()
	return h, previous, nil
}

// release undoes a reserve whose store insert failed, restoring the previous
// workspace pointer if there was one.
func (r *registry) release(job *domain.Job, previous uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.jobs, job.JobID())
	if r.byWorkspace[job.WorkspaceID()] != job.JobID() {
		return
	}
	if _, ok := r.jobs[previous]; ok {
		r.byWorkspace[job.WorkspaceID()] = previous
		return
	}
	delete(r.byWorkspace, job.WorkspaceID())
}

// load inserts a job read back from the store. The workspace pointer prefers a
// non-terminal job, then the most recently created one.
func (r *registry) load(job *domain.Job) *jobHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := &jobHandle{job: job, stored: job.Status()}
	r.jobs[job.JobID()] = h

	ws := job.WorkspaceID()
	curID, ok := r.byWorkspace[ws]
	if !ok {
		r.byWorkspace[ws] = job.JobID()
		return h
	}
	cur, ok := r.jobs[curID]
	if !ok {
		r.byWorkspace[ws] = job.JobID()
		return h
	}
	curJob := cur.snapshot()
	if curJob.IsTerminal() && (!job.IsTerminal() || job.CreatedAt().After(curJob.CreatedAt())) {
		r.byWorkspace[ws] = job.JobID()
	}
	return h
}

func (r *registry) get(id uuid.UUID) (*jobHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.jobs[id]
	return h, ok
}

// workspaceJob returns the handle of the job the workspace currently points at.
func (r *registry) workspaceJob(workspaceID string) (*jobHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byWorkspace[workspaceID]
	if !ok {
		return nil, false
	}
	h, ok := r.jobs[id]
	return h, ok
}

// remove drops a job. The workspace pointer moves to the newest remaining job
// of that workspace, if any.
func (r *registry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.jobs[id]
	if !ok {
		return
	}
	delete(r.jobs, id)

	ws := h.snapshot().WorkspaceID()
	if r.byWorkspace[ws] != id {
		return
	}
	delete(r.byWorkspace, ws)

	var newest *domain.Job
	for _, other := range r.jobs {
		j := other.snapshot()
		if j.WorkspaceID() != ws {
			continue
		}
		if newest == nil || j.CreatedAt().After(newest.CreatedAt()) {
			newest = j
		}
	}
	if newest != nil {
		r.byWorkspace[ws] = newest.JobID()
	}
}

// list returns snapshots of every job matching filter, newest first.
func (r *registry) list(filter domain.JobFilter) []*domain.Job {
	r.mu.RLock()
	handles := make([]*jobHandle, 0, len(r.jobs))
	for _, h := range r.jobs {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	out := make([]*domain.Job, 0, len(handles))
	for _, h := range handles {
		if j := h.snapshot(); filter.Matches(j) {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Job) int { return b.CreatedAt().Compare(a.CreatedAt()) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// countByStatus reports how many registered jobs are in each status.
func (r *registry) countByStatus() map[domain.JobStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.JobStatus]int)
	for _, h := range r.jobs {
		counts[h.status()]++
	}
	return counts
}
