package scan

import (
	"fmt"
	"sync"
	"time"
)

// Registry is the in-memory scan job store with 24h TTL purge (spec.md
// §4.4, §5: "A job older than 24h is purged on the next registry access").
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	jobs    map[string]*Job
	counter int
}

// NewRegistry builds an empty job registry with the given purge TTL.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:  ttl,
		now:  time.Now,
		jobs: make(map[string]*Job),
	}
}

func (r *Registry) purgeExpired() {
	now := r.now()
	for id, job := range r.jobs {
		if now.Sub(job.Created) > r.ttl {
			delete(r.jobs, id)
		}
	}
}

func (r *Registry) nextJobID() string {
	r.counter++
	return fmt.Sprintf("scan_%d_%d", r.now().UnixMilli(), r.counter)
}

// create registers a new running job and returns it.
func (r *Registry) create(cidrs []string, credentialIDs []int64, discoveryMode string, totalTargets int) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeExpired()

	job := &Job{
		ID:            r.nextJobID(),
		Created:       r.now(),
		CIDRs:         cidrs,
		CredentialIDs: credentialIDs,
		DiscoveryMode: discoveryMode,
		TotalTargets:  totalTargets,
		state:         StateRunning,
	}
	r.jobs[job.ID] = job
	return job
}

// Get returns the job by ID, purging expired jobs first. The second return
// value is false if the job does not exist (or has expired).
func (r *Registry) Get(jobID string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeExpired()
	job, ok := r.jobs[jobID]
	return job, ok
}

// Delete drops the in-memory record (spec.md §5: "deletion drops the
// in-memory record. In-flight workers... MUST not append to the deleted
// job's results"). It marks the job deleted before removing it from the
// map so in-flight workers observe the flag at their next boundary check.
func (r *Registry) Delete(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return false
	}
	job.mu.Lock()
	job.deleted = true
	job.mu.Unlock()
	delete(r.jobs, jobID)
	return true
}

// List returns all non-expired jobs' statuses, for the job-listing endpoint.
func (r *Registry) List() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeExpired()
	out := make([]Status, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Status())
	}
	return out
}
