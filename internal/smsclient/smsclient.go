// Package smsclient is the hand-rolled GraphQL-over-HTTP + REST client for
// the Structured Management System (SMS) collaborator (spec.md glossary).
// It is the only thing internal/query and the onboarding path in
// internal/scan need from the outside world: device queries and onboarding
// job submission. Everything else about the SMS (auth issuance, its own
// job execution) is out of scope per spec.md §1.
package smsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit/internal/errs"
)

// Device is the domain shape devices-by-<field> GraphQL queries are
// destructured into. Dynamic, attribute-reading GraphQL response walking
// (the source language's pattern) is replaced per spec.md §9 with this
// explicit, total struct: missing nested fields become zero values rather
// than causing an attribute lookup to fail.
type Device struct {
	ID           string
	Name         string
	Location     string
	Role         string
	Tags         []string
	DeviceType   string
	Manufacturer string
	Platform     string
	Status       string
	PrimaryIP    string
	CustomFields map[string]string
}

// Client is a thin GraphQL + REST client over the SMS's HTTP surface.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logrus.Logger
}

// New builds a Client. timeout bounds every request (spec.md §5: "SMS HTTP
// calls: configurable, default 30s").
func New(baseURL, token string, timeout time.Duration, log *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// graphqlEnvelope mirrors the {query, variables} POST body shape every
// example GraphQL client in the pack uses (see DESIGN.md).
type graphqlEnvelope struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// graphQL POSTs query+variables to /graphql and unmarshals the "data" key
// into out. A non-empty "errors" array is surfaced as an AuthError or
// RemoteUnavailable depending on the HTTP status observed.
func (c *Client) graphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlEnvelope{Query: query, Variables: variables})
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encode graphql request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.KindInternal, "build graphql request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindRemoteUnavailable, "sms graphql request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.KindRemoteUnavailable, "read sms graphql response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errs.New(errs.KindAuth, "sms rejected credentials")
	}
	if resp.StatusCode >= 500 {
		return errs.New(errs.KindRemoteUnavailable, fmt.Sprintf("sms returned %d", resp.StatusCode))
	}

	var gr graphqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return errs.Wrap(errs.KindInternal, "decode sms graphql response", err)
	}
	if len(gr.Errors) > 0 {
		if c.log != nil {
			c.log.WithField("errors", gr.Errors).Warn("sms graphql returned errors")
		}
		return errs.New(errs.KindRemoteUnavailable, gr.Errors[0].Message)
	}
	if out != nil && len(gr.Data) > 0 {
		if err := json.Unmarshal(gr.Data, out); err != nil {
			return errs.Wrap(errs.KindInternal, "decode sms graphql data", err)
		}
	}
	return nil
}

// deviceFragment is the GraphQL selection set shared by every device
// query, matching the field set Device destructures.
const deviceFragment = `
  id
  name
  primary_ip4 { address }
  location { name }
  role { name }
  status { name }
  device_type { model manufacturer { name } }
  platform { name }
  tags { name }
  custom_field_data
`

type rawDevice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PrimaryIP *struct {
		Address string `json:"address"`
	} `json:"primary_ip4"`
	Location *struct {
		Name string `json:"name"`
	} `json:"location"`
	Role *struct {
		Name string `json:"name"`
	} `json:"role"`
	Status *struct {
		Name string `json:"name"`
	} `json:"status"`
	DeviceType *struct {
		Model        string `json:"model"`
		Manufacturer *struct {
			Name string `json:"name"`
		} `json:"manufacturer"`
	} `json:"device_type"`
	Platform *struct {
		Name string `json:"name"`
	} `json:"platform"`
	Tags           []struct{ Name string `json:"name"` } `json:"tags"`
	CustomFieldData map[string]any                       `json:"custom_field_data"`
}

func (d rawDevice) toDevice() Device {
	out := Device{ID: d.ID, Name: d.Name, CustomFields: make(map[string]string)}
	if d.PrimaryIP != nil {
		out.PrimaryIP = d.PrimaryIP.Address
	}
	if d.Location != nil {
		out.Location = d.Location.Name
	}
	if d.Role != nil {
		out.Role = d.Role.Name
	}
	if d.Status != nil {
		out.Status = d.Status.Name
	}
	if d.DeviceType != nil {
		out.DeviceType = d.DeviceType.Model
		if d.DeviceType.Manufacturer != nil {
			out.Manufacturer = d.DeviceType.Manufacturer.Name
		}
	}
	if d.Platform != nil {
		out.Platform = d.Platform.Name
	}
	for _, t := range d.Tags {
		out.Tags = append(out.Tags, t.Name)
	}
	for k, v := range d.CustomFieldData {
		if s, ok := v.(string); ok {
			out.CustomFields[k] = s
		}
	}
	return out
}

type devicesQueryResult struct {
	Devices struct {
		Objects []rawDevice `json:"objects"`
	} `json:"devices"`
}

// DevicesByName resolves the "name" field (spec.md §4.5 table), honoring
// regex-style matching when contains is true.
func (c *Client) DevicesByName(ctx context.Context, value string, contains bool) ([]Device, error) {
	filterKey := "name"
	if contains {
		filterKey = "name__ire" // case-insensitive regex filter, SMS GraphQL convention
	}
	return c.devicesByFilter(ctx, filterKey, value)
}

// DevicesByLocation resolves "location" (locations -> devices), with
// regex support.
func (c *Client) DevicesByLocation(ctx context.Context, value string, contains bool) ([]Device, error) {
	filterKey := "location"
	if contains {
		filterKey = "location__ire"
	}
	return c.devicesByFilter(ctx, filterKey, value)
}

// DevicesByRole resolves "role" (equals only, spec.md §4.5 table).
func (c *Client) DevicesByRole(ctx context.Context, value string) ([]Device, error) {
	return c.devicesByFilter(ctx, "role", value)
}

// DevicesByTag resolves "tag" (equals only).
func (c *Client) DevicesByTag(ctx context.Context, value string) ([]Device, error) {
	return c.devicesByFilter(ctx, "tags", value)
}

// DevicesByDeviceType resolves "device_type" (equals only).
func (c *Client) DevicesByDeviceType(ctx context.Context, value string) ([]Device, error) {
	return c.devicesByFilter(ctx, "device_type", value)
}

// DevicesByManufacturer resolves "manufacturer" (equals only).
func (c *Client) DevicesByManufacturer(ctx context.Context, value string) ([]Device, error) {
	return c.devicesByFilter(ctx, "manufacturer", value)
}

// DevicesByPlatform resolves "platform" (equals only).
func (c *Client) DevicesByPlatform(ctx context.Context, value string) ([]Device, error) {
	return c.devicesByFilter(ctx, "platform", value)
}

// DevicesByCustomField resolves "custom_fields.<name>" (equals only,
// spec.md §4.5 table).
func (c *Client) DevicesByCustomField(ctx context.Context, fieldName, value string) ([]Device, error) {
	return c.devicesByFilter(ctx, "cf_"+fieldName, value)
}

func (c *Client) devicesByFilter(ctx context.Context, filterKey, value string) ([]Device, error) {
	query := fmt.Sprintf(`query($value: [String]) { devices(%s: $value) { objects { %s } } }`, filterKey, deviceFragment)
	var result devicesQueryResult
	if err := c.graphQL(ctx, query, map[string]any{"value": []string{value}}, &result); err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(result.Devices.Objects))
	for _, d := range result.Devices.Objects {
		out = append(out, d.toDevice())
	}
	return out, nil
}

// OnboardingParams is one device's Cisco onboarding submission (spec.md
// §4.4, SPEC_FULL §4: "scan_and_add onboarding field set").
type OnboardingParams struct {
	IP              string
	Location        string
	Namespace       string
	Role            string
	Status          string
	InterfaceStatus string
	IPStatus        string
	Platform        string // "detect" is transmitted as null
	Port            int
	Timeout         int
}

type onboardingJobResponse struct {
	JobID string `json:"job_id"`
}

// SubmitOnboarding POSTs one onboarding job to the SMS and returns its job
// identifier.
func (c *Client) SubmitOnboarding(ctx context.Context, p OnboardingParams) (string, error) {
	payload := map[string]any{
		"ip_address":       p.IP,
		"location":         p.Location,
		"namespace":        p.Namespace,
		"role":             p.Role,
		"status":           p.Status,
		"interface_status": p.InterfaceStatus,
		"ip_status":        p.IPStatus,
		"port":             p.Port,
		"timeout":          p.Timeout,
	}
	if p.Platform == "detect" {
		payload["platform"] = nil
	} else {
		payload["platform"] = p.Platform
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "encode onboarding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/onboarding/devices/", bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "build onboarding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.KindRemoteUnavailable, "sms onboarding request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.Wrap(errs.KindRemoteUnavailable, "read sms onboarding response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", errs.New(errs.KindAuth, "sms rejected onboarding credentials")
	case resp.StatusCode >= 500:
		return "", errs.New(errs.KindRemoteUnavailable, fmt.Sprintf("sms onboarding returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return "", errs.New(errs.KindValidation, fmt.Sprintf("sms onboarding rejected device %s: %s", p.IP, string(raw)))
	}

	var out onboardingJobResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errs.Wrap(errs.KindInternal, "decode sms onboarding response", err)
	}
	return out.JobID, nil
}
