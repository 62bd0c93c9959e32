// Per-job supervisor: target expansion, the bounded-10 worker pool, and
// the per-host liveness -> credential-trial algorithm (spec.md §4.4, §5).
package scan

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/nerdfunk-net/cockpit/internal/errs"
	"github.com/nerdfunk-net/cockpit/internal/scan/drivers"
	"github.com/nerdfunk-net/cockpit/internal/textfsm"
	"github.com/nerdfunk-net/cockpit/internal/vault"
)

// ModeNapalm and ModeSSHLogin are the recognized discovery modes
// (spec.md §3: "discovery_mode ∈ {napalm, ssh-login}").
const (
	ModeNapalm   = "napalm"
	ModeSSHLogin = "ssh-login"
)

// CredentialSource is the subset of the Vault the scan subsystem needs:
// username lookup plus guarded decrypt.
type CredentialSource interface {
	Get(id int64) (vault.Credential, error)
	Decrypt(id int64) (string, error)
}

// TemplateSource resolves a parser template id to its compiled TextFSM
// program, for ssh-login mode's hostname recovery (spec.md §4.4).
type TemplateSource interface {
	GetTextFSM(id int64) (*textfsm.Template, error)
}

// Deps bundles everything a job's supervisor needs beyond the target list
// itself, so Start's signature stays small.
type Deps struct {
	Creds       CredentialSource
	Templates   TemplateSource // may be nil if no parser templates are used
	Pinger      Pinger
	Concurrency int
	PingTimeout time.Duration
	PingRetries int
	AuthTimeout time.Duration
	Log         *logrus.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Concurrency <= 0 {
		d.Concurrency = 10
	}
	if d.PingTimeout <= 0 {
		d.PingTimeout = 1500 * time.Millisecond
	}
	if d.PingRetries <= 0 {
		d.PingRetries = 3
	}
	if d.AuthTimeout <= 0 {
		d.AuthTimeout = 5 * time.Second
	}
	if d.Pinger == nil {
		d.Pinger = ICMPPinger{}
	}
	return d
}

// Start expands cidrs into targets, creates a running Job, and launches
// its background supervisor (spec.md §5: "exactly one background task per
// ScanJob"). It returns immediately; the job's Status() is polled for
// progress.
func (r *Registry) Start(cidrs []string, credentialIDs []int64, discoveryMode string, parserTemplateIDs []int64, deps Deps) (*Job, error) {
	if discoveryMode != ModeNapalm && discoveryMode != ModeSSHLogin {
		return nil, errs.New(errs.KindValidation, "discovery_mode must be \"napalm\" or \"ssh-login\"")
	}
	if len(credentialIDs) == 0 {
		return nil, errs.New(errs.KindValidation, "at least one credential is required")
	}

	targets, err := ExpandTargets(cidrs)
	if err != nil {
		return nil, err
	}

	deps = deps.withDefaults()
	job := r.create(cidrs, credentialIDs, discoveryMode, len(targets))

	var templates []*textfsm.Template
	if deps.Templates != nil {
		for _, id := range parserTemplateIDs {
			if tpl, terr := deps.Templates.GetTextFSM(id); terr == nil {
				templates = append(templates, tpl)
			}
		}
	}

	go runSupervisor(job, targets, credentialIDs, discoveryMode, templates, deps)
	return job, nil
}

// runSupervisor fans out to at most deps.Concurrency concurrent host
// workers using a counting semaphore (spec.md §5: "enforce this bound with
// a counting semaphore").
func runSupervisor(job *Job, targets []string, credentialIDs []int64, mode string, templates []*textfsm.Template, deps Deps) {
	ctx := context.Background()
	sem := semaphore.NewWeighted(int64(deps.Concurrency))

	done := make(chan struct{})
	remaining := int64(len(targets))
	if remaining == 0 {
		close(done)
	} else {
		var completed int64
		for _, ip := range targets {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			go func(ip string) {
				defer sem.Release(1)
				defer func() {
					if c := atomic.AddInt64(&completed, 1); c == remaining {
						close(done)
					}
				}()
				processHost(job, ip, credentialIDs, mode, templates, deps)
			}(ip)
		}
	}

	<-done
	job.finish(nil)
}

// entry returns an ip-scoped log entry, or a standalone entry if deps.Log
// is nil (tests construct Deps without a logger).
func (d Deps) entry(ip string) *logrus.Entry {
	if d.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return d.Log.WithFields(logrus.Fields{"ip": ip})
}

// processHost runs the full per-host algorithm: liveness, then credential
// trials in order, stopping at the first success (spec.md §4.4).
func processHost(job *Job, ip string, credentialIDs []int64, mode string, templates []*textfsm.Template, deps Deps) {
	if job.isDeleted() {
		return
	}

	if !isAlive(deps.Pinger, ip, deps.PingTimeout, deps.PingRetries) {
		job.recordUnreachable()
		return
	}
	job.recordAlive()

	sawUnclassified := false

	for _, credID := range credentialIDs {
		if job.isDeleted() {
			return
		}

		cred, err := deps.Creds.Get(credID)
		if err != nil {
			continue
		}
		password, err := deps.Creds.Decrypt(credID)
		if err != nil {
			deps.entry(ip).WithError(err).Warn("credential decrypt failed")
			continue
		}

		switch mode {
		case ModeNapalm:
			result, ok, connected := classifyNapalm(ip, cred.Username, password, deps.AuthTimeout)
			if ok {
				if job.isDeleted() {
					return
				}
				result.CredentialID = credID
				result.IP = ip
				job.recordSuccess(result)
				return
			}
			if connected {
				sawUnclassified = true
			}

		case ModeSSHLogin:
			attempt := trySSHLogin(ip, cred.Username, password, deps.AuthTimeout, templates)
			if attempt.connected {
				if job.isDeleted() {
					return
				}
				job.recordSuccess(Result{
					IP:           ip,
					CredentialID: credID,
					DeviceType:   attempt.deviceType,
					Hostname:     attempt.hostname,
					Platform:     attempt.platform,
				})
				return
			}
		}
	}

	if job.isDeleted() {
		return
	}
	if mode == ModeNapalm && sawUnclassified {
		job.recordDriverNotSupported()
		return
	}
	job.recordAuthFailed()
}

// classifyNapalm tries the fixed Cisco driver priority order, then the
// Linux fallback probe, all over the same credential (spec.md §4.4 "Mode
// napalm"). ok is false when no probe classified the device; connected is
// true when at least one probe logged in but reported
// drivers.ErrNotSupported. The caller counts driver_not_supported only if
// some credential connected, and auth_failed otherwise, once across all
// credentials.
func classifyNapalm(ip, username, password string, timeout time.Duration) (result Result, ok bool, connected bool) {
	for _, driver := range drivers.CiscoDriverOrder {
		facts, err := drivers.TryCisco(driver, ip, username, password, timeout)
		if err == nil {
			return Result{DeviceType: "cisco", Hostname: facts.Hostname, Platform: facts.Platform}, true, true
		}
		if errors.Is(err, drivers.ErrNotSupported) {
			connected = true
		}
	}

	facts, err := drivers.TryLinux(ip, username, password, timeout)
	if err == nil {
		return Result{DeviceType: "linux", Hostname: facts.Hostname, Platform: "linux"}, true, true
	}
	if errors.Is(err, drivers.ErrNotSupported) {
		connected = true
	}

	return Result{}, false, connected
}

