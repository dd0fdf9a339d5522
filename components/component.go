// Package components holds the per-kind policy for the SageMaker resources ackstep drives.
package components

import (
	"context"
	"fmt"
	"sort"
	"strings"

	v1alpha1 "github.com/apollo/ackstep/api/sagemaker/v1alpha1"
	"github.com/apollo/ackstep/controller/reconcilers"
	"github.com/apollo/ackstep/pkg/conditions"
	"github.com/apollo/ackstep/pkg/outputs"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// OutputResourceARN is produced by every kind once the service resource exists.
const OutputResourceARN = "sagemaker_resource_arn"

// Reader fetches the live state of a submitted resource.
type Reader interface {
	Get(ctx context.Context, h reconcilers.Handle) (*unstructured.Unstructured, error)
}

type definition struct {
	kind     string
	required []string
	// outputs maps output names to JSONPath expressions evaluated on the live object.
	outputs    map[string]string
	upgradable bool
	// status interprets the kind-specific part of a live object once it is not terminal.
	status func(obj *unstructured.Unstructured) (reconcilers.JobStatus, error)
	active func(obj *unstructured.Unstructured) bool
}

var registry = map[string]definition{}

func register(d definition) {
	d.outputs[OutputResourceARN] = "{.status.ackResourceMetadata.arn}"
	registry[strings.ToLower(d.kind)] = d
}

// Kinds returns the registered kind names, sorted.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for _, d := range registry {
		out = append(out, d.kind)
	}
	sort.Strings(out)
	return out
}

// Component implements reconcilers.Component for one SageMaker kind.
type Component struct {
	def    definition
	reader Reader
}

func lookup(kind string) (definition, error) {
	d, ok := registry[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return definition{}, fmt.Errorf("unknown kind %q (known: %s)", kind, strings.Join(Kinds(), ", "))
	}
	return d, nil
}

// GroupVersionKind resolves a kind name, matched case-insensitively.
func GroupVersionKind(kind string) (schema.GroupVersionKind, error) {
	d, err := lookup(kind)
	if err != nil {
		return schema.GroupVersionKind{}, err
	}
	return v1alpha1.GroupVersionKind(d.kind), nil
}

// New returns the component for kind. Kind matching is case-insensitive.
func New(kind string, reader Reader) (*Component, error) {
	d, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	return &Component{def: d, reader: reader}, nil
}

func (c *Component) GroupVersionKind() schema.GroupVersionKind {
	return v1alpha1.GroupVersionKind(c.def.kind)
}

func (c *Component) RequiredFields() []string { return c.def.required }

func (c *Component) SupportsUpgrade() bool { return c.def.upgradable }

// OutputNames lists the outputs this kind can produce.
func (c *Component) OutputNames() []string {
	out := make([]string, 0, len(c.def.outputs))
	for name := range c.def.outputs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Component) IsActive(obj *unstructured.Unstructured) bool {
	if c.def.active == nil {
		return false
	}
	return c.def.active(obj)
}

// JobStatus reads the live object and interprets it. A terminal ACK condition
// is reported as an error before any kind-specific status is considered.
func (c *Component) JobStatus(ctx context.Context, h reconcilers.Handle) (reconcilers.JobStatus, error) {
	obj, err := c.reader.Get(ctx, h)
	if err != nil {
		return reconcilers.JobStatus{}, err
	}
	return c.interpret(obj)
}

func (c *Component) interpret(obj *unstructured.Unstructured) (reconcilers.JobStatus, error) {
	var common v1alpha1.ResourceStatus
	found, err := v1alpha1.StatusInto(obj, &common)
	if err != nil {
		return reconcilers.JobStatus{}, err
	}
	if !found {
		return reconcilers.JobStatus{RawStatus: "Pending"}, nil
	}
	if conditions.IsTrue(common.Conditions, v1alpha1.ConditionTerminal) {
		terminal := conditions.FindCondition(common.Conditions, v1alpha1.ConditionTerminal)
		msg := terminal.Message
		if msg == "" {
			msg = terminal.Reason
		}
		return reconcilers.JobStatus{RawStatus: string(v1alpha1.ConditionTerminal), HasError: true, ErrorMessage: msg}, nil
	}
	return c.def.status(obj)
}

// AfterJobComplete evaluates every output of the kind against the live object.
// Outputs that resolve to nothing are omitted.
func (c *Component) AfterJobComplete(ctx context.Context, h reconcilers.Handle) (map[string]string, error) {
	obj, err := c.reader.Get(ctx, h)
	if err != nil {
		return nil, err
	}
	values, err := outputs.Evaluate(obj, c.def.outputs)
	if err != nil {
		return nil, err
	}
	log.FromContext(ctx).V(1).Info("collected outputs", "count", len(values))
	return values, nil
}

var (
	_ reconcilers.Component      = (*Component)(nil)
	_ reconcilers.OutputDeclarer = (*Component)(nil)
)
