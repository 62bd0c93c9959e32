// Package query implements the Device-Set Query Engine (spec.md §4.5): a
// tree of boolean operations over field predicates, resolved against the
// SMS and combined into a deduplicated device set.
package query

import (
	"context"
	"strings"

	"github.com/nerdfunk-net/cockpit/internal/errs"
	"github.com/nerdfunk-net/cockpit/internal/smsclient"
)

// Operator is a leaf Condition's comparison (spec.md §3).
type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
)

// Kind is a LogicalOperation's boolean variant (spec.md §3).
type Kind string

const (
	KindAND Kind = "AND"
	KindOR  Kind = "OR"
	KindNOT Kind = "NOT"
)

// Condition is one field predicate leaf (spec.md §3).
type Condition struct {
	Field    string
	Operator Operator
	Value    string
}

// Operation is a LogicalOperation: a Kind plus its Condition leaves and
// nested Operations (spec.md §3).
type Operation struct {
	Kind       Kind
	Conditions []Condition
	Nested     []Operation
}

// containsCapableFields are the fields whose SMS resolver supports
// regex-style matching (spec.md §4.5 table: "name", "location").
var containsCapableFields = map[string]bool{
	"name":     true,
	"location": true,
}

// Resolver is the SMS collaborator surface the query engine needs. It is
// satisfied by *smsclient.Client; tests substitute a fake.
type Resolver interface {
	DevicesByName(ctx context.Context, value string, contains bool) ([]smsclient.Device, error)
	DevicesByLocation(ctx context.Context, value string, contains bool) ([]smsclient.Device, error)
	DevicesByRole(ctx context.Context, value string) ([]smsclient.Device, error)
	DevicesByTag(ctx context.Context, value string) ([]smsclient.Device, error)
	DevicesByDeviceType(ctx context.Context, value string) ([]smsclient.Device, error)
	DevicesByManufacturer(ctx context.Context, value string) ([]smsclient.Device, error)
	DevicesByPlatform(ctx context.Context, value string) ([]smsclient.Device, error)
	DevicesByCustomField(ctx context.Context, fieldName, value string) ([]smsclient.Device, error)
}

// Engine evaluates Operation trees against a Resolver.
type Engine struct {
	resolver Resolver
}

// New builds an Engine over resolver.
func New(resolver Resolver) *Engine {
	return &Engine{resolver: resolver}
}

// Result is the outcome of Preview/Generate: the deduplicated device set
// plus the operation count for UI feedback (spec.md §4.5: "Operation
// counting").
type Result struct {
	Devices            []smsclient.Device
	OperationsExecuted int
}

// set is a deduplicated device collection keyed by ID, used internally for
// the boolean combination (spec.md §4.5, §8).
type set struct {
	byID  map[string]smsclient.Device
	order []string
}

func newSet() *set {
	return &set{byID: make(map[string]smsclient.Device)}
}

func setFrom(devices []smsclient.Device) *set {
	s := newSet()
	for _, d := range devices {
		s.add(d)
	}
	return s
}

func (s *set) add(d smsclient.Device) {
	if _, ok := s.byID[d.ID]; ok {
		return
	}
	s.byID[d.ID] = d
	s.order = append(s.order, d.ID)
}

func (s *set) devices() []smsclient.Device {
	out := make([]smsclient.Device, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func intersect(a, b *set) *set {
	out := newSet()
	for _, id := range a.order {
		if _, ok := b.byID[id]; ok {
			out.add(a.byID[id])
		}
	}
	return out
}

func union(a, b *set) *set {
	out := newSet()
	for _, id := range a.order {
		out.add(a.byID[id])
	}
	for _, id := range b.order {
		out.add(b.byID[id])
	}
	return out
}

func difference(a, b *set) *set {
	out := newSet()
	for _, id := range a.order {
		if _, ok := b.byID[id]; !ok {
			out.add(a.byID[id])
		}
	}
	return out
}

// Evaluate runs the full preview/generate algorithm over the top-level
// operations list (spec.md §4.5, §8 worked examples).
func (e *Engine) Evaluate(ctx context.Context, operations []Operation) (Result, error) {
	ops := 0
	var acc *set
	started := false

	for _, op := range operations {
		s, opCount, err := e.evalOperation(ctx, op)
		if err != nil {
			return Result{}, err
		}
		ops += opCount

		switch {
		case op.Kind == KindNOT && !started:
			// A leading NOT starts from the empty set (spec.md §4.5, §8:
			// "For operations [NOT(P)] alone, the result is the empty
			// set").
			acc = newSet()
			started = true
		case op.Kind == KindNOT:
			acc = difference(acc, s)
		case !started:
			acc = s
			started = true
		default:
			acc = intersect(acc, s)
		}
	}

	if acc == nil {
		acc = newSet()
	}
	return Result{Devices: acc.devices(), OperationsExecuted: ops}, nil
}

// evalOperation recursively resolves one operation's children and combines
// them per its Kind (spec.md §4.5: "an operation's children... produce
// sets; the operation combines them").
func (e *Engine) evalOperation(ctx context.Context, op Operation) (*set, int, error) {
	ops := 0
	var childSets []*set

	for _, cond := range op.Conditions {
		s, err := e.evalCondition(ctx, cond)
		if err != nil {
			return nil, ops, err
		}
		ops++
		childSets = append(childSets, s)
	}
	for _, nested := range op.Nested {
		s, nestedOps, err := e.evalOperation(ctx, nested)
		if err != nil {
			return nil, ops, err
		}
		ops += nestedOps
		childSets = append(childSets, s)
	}

	if len(childSets) == 0 {
		return newSet(), ops, nil
	}

	combined := childSets[0]
	for _, s := range childSets[1:] {
		switch op.Kind {
		case KindAND:
			combined = intersect(combined, s)
		default: // OR and NOT both union their children (spec.md §4.5:
			// "NOT => union of child sets; the semantic negation is
			// applied by the top-level combiner, not inside NOT").
			combined = union(combined, s)
		}
	}
	return combined, ops, nil
}

// evalCondition resolves a single leaf Condition via the field's GraphQL
// resolver (spec.md §4.5 table).
func (e *Engine) evalCondition(ctx context.Context, cond Condition) (*set, error) {
	contains := cond.Operator == OpContains && containsCapableFields[cond.Field]

	switch {
	case cond.Field == "name":
		devices, err := e.resolver.DevicesByName(ctx, cond.Value, contains)
		return wrapErr(devices, err)
	case cond.Field == "location":
		devices, err := e.resolver.DevicesByLocation(ctx, cond.Value, contains)
		return wrapErr(devices, err)
	case cond.Field == "role":
		devices, err := e.resolver.DevicesByRole(ctx, cond.Value)
		return wrapErr(devices, err)
	case cond.Field == "tag":
		devices, err := e.resolver.DevicesByTag(ctx, cond.Value)
		return wrapErr(devices, err)
	case cond.Field == "device_type":
		devices, err := e.resolver.DevicesByDeviceType(ctx, cond.Value)
		return wrapErr(devices, err)
	case cond.Field == "manufacturer":
		devices, err := e.resolver.DevicesByManufacturer(ctx, cond.Value)
		return wrapErr(devices, err)
	case cond.Field == "platform":
		devices, err := e.resolver.DevicesByPlatform(ctx, cond.Value)
		return wrapErr(devices, err)
	case strings.HasPrefix(cond.Field, "custom_fields."):
		name := strings.TrimPrefix(cond.Field, "custom_fields.")
		devices, err := e.resolver.DevicesByCustomField(ctx, name, cond.Value)
		return wrapErr(devices, err)
	default:
		return nil, errs.New(errs.KindValidation, "unrecognized field \""+cond.Field+"\"")
	}
}

func wrapErr(devices []smsclient.Device, err error) (*set, error) {
	if err != nil {
		return nil, err
	}
	return setFrom(devices), nil
}
