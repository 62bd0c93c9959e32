package scan

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit/internal/errs"
	"github.com/nerdfunk-net/cockpit/internal/gitrepo"
	"github.com/nerdfunk-net/cockpit/internal/inventory"
	"github.com/nerdfunk-net/cockpit/internal/smsclient"
	"github.com/nerdfunk-net/cockpit/internal/template"
)

// SMSSubmitter is the subset of the SMS client the onboarding path needs:
// submitting one Cisco onboarding job per device (spec.md §4.4).
type SMSSubmitter interface {
	SubmitOnboarding(ctx context.Context, p smsclient.OnboardingParams) (string, error)
}

// InventoryGenerator is the subset of the Inventory Generator the linux
// onboarding path needs (spec.md §4.4, §4.6).
type InventoryGenerator interface {
	Generate(req inventory.Request) (inventory.Result, error)
}

// OnboardDevice is one device the operator selected for onboarding, plus
// the SMS fields the spec's onboarding contract requires.
type OnboardDevice struct {
	IP              string
	Location        string
	Namespace       string
	Role            string
	Status          string
	InterfaceStatus string
	IPStatus        string
	Platform        string
	Port            int
	Timeout         int
}

// OnboardOptions carries the Inventory-Generator-only fields the request
// supplies when any onboarded device is a Linux host (spec.md §4.4, §6).
type OnboardOptions struct {
	TemplateBody  string
	Repository    *gitrepo.Repository
	Filename      string
	AutoCommit    bool
	AutoPush      bool
	CommitMessage string
}

// OnboardResult is the onboarding endpoint's response body (spec.md §6).
type OnboardResult struct {
	Accepted      int
	CiscoQueued   int
	LinuxAdded    int
	InventoryPath string
	JobIDs        []string
}

// normalizePlatform maps the operator's auto-detect spellings onto
// "linux" (SPEC_FULL §4: "scan_and_add onboarding field set").
func normalizePlatform(platform string) string {
	switch platform {
	case "detect", "auto", "auto-detect":
		return "linux"
	}
	return platform
}

// Onboard validates that every submitted device IP matches a result in
// jobID's job, then dispatches Cisco devices to the SMS and Linux devices
// to the Inventory Generator (spec.md §4.4 "Onboarding submission").
// Failures on individual devices are recovered locally; onboarding never
// aborts because one device failed (spec.md §7).
func (r *Registry) Onboard(ctx context.Context, jobID string, devices []OnboardDevice, sms SMSSubmitter, gen InventoryGenerator, opts OnboardOptions, log *logrus.Logger) (OnboardResult, error) {
	job, ok := r.Get(jobID)
	if !ok {
		return OnboardResult{}, errs.New(errs.KindNotFound, "scan job not found")
	}

	status := job.Status()
	byIP := make(map[string]Result, len(status.Results))
	for _, res := range status.Results {
		byIP[res.IP] = res
	}

	var result OnboardResult
	var linuxDevices []map[string]any

	for _, dev := range devices {
		scanResult, found := byIP[dev.IP]
		if !found {
			if log != nil {
				log.WithField("ip", dev.IP).Warn("onboard device does not match any scan result")
			}
			continue
		}

		switch scanResult.DeviceType {
		case "cisco":
			platform := dev.Platform
			if platform == "" {
				platform = "detect"
			}
			jobID, err := sms.SubmitOnboarding(ctx, smsclient.OnboardingParams{
				IP:              dev.IP,
				Location:        dev.Location,
				Namespace:       dev.Namespace,
				Role:            dev.Role,
				Status:          dev.Status,
				InterfaceStatus: dev.InterfaceStatus,
				IPStatus:        dev.IPStatus,
				Platform:        platform,
				Port:            dev.Port,
				Timeout:         dev.Timeout,
			})
			if err != nil {
				if log != nil {
					log.WithError(err).WithField("ip", dev.IP).Error("cisco onboarding submission failed")
				}
				continue
			}
			result.CiscoQueued++
			result.Accepted++
			result.JobIDs = append(result.JobIDs, jobID)

		case "linux":
			linuxDevices = append(linuxDevices, map[string]any{
				"ip":       dev.IP,
				"hostname": scanResult.Hostname,
				"platform": normalizePlatform(firstNonEmpty(dev.Platform, scanResult.Platform)),
			})
			result.Accepted++

		default:
			if log != nil {
				log.WithField("ip", dev.IP).Warn("onboard device has unclassified device_type, skipped")
			}
		}
	}

	if len(linuxDevices) > 0 && gen != nil {
		invResult, err := gen.Generate(inventory.Request{
			TemplateBody:  opts.TemplateBody,
			TemplateKind:  template.KindJinja2,
			Devices:       linuxDevices,
			Repository:    opts.Repository,
			Filename:      opts.Filename,
			AutoCommit:    opts.AutoCommit,
			AutoPush:      opts.AutoPush,
			CommitMessage: opts.CommitMessage,
		})
		if err != nil {
			if log != nil {
				log.WithError(err).Error("linux inventory generation failed")
			}
		} else {
			result.LinuxAdded = len(linuxDevices)
			result.InventoryPath = invResult.Path
		}
	}

	return result, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
