package reconcilers

import (
	"context"
	"errors"
	"time"

	v1alpha1 "github.com/apollo/ackstep/api/sagemaker/v1alpha1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var endpointGVK = v1alpha1.GroupVersionKind(v1alpha1.KindEndpoint)

type fakeBackend struct {
	calls []string

	existing  *unstructured.Unstructured
	getErr    error
	submitErr error
	submitted []*unstructured.Unstructured

	// conditionTimes is served one entry per Conditions call; the last entry repeats.
	conditionTimes [][]string
	conditionReads int
	conditionsErr  error
}

func (b *fakeBackend) CreateOrUpdate(_ context.Context, obj *unstructured.Unstructured) (Handle, error) {
	b.calls = append(b.calls, "submit")
	b.submitted = append(b.submitted, obj.DeepCopy())
	if b.submitErr != nil {
		return Handle{}, b.submitErr
	}
	return HandleFor(obj), nil
}

func (b *fakeBackend) Get(_ context.Context, h Handle) (*unstructured.Unstructured, error) {
	b.calls = append(b.calls, "get")
	if b.getErr != nil {
		return nil, b.getErr
	}
	if b.existing == nil {
		return nil, errors.Join(ErrNotFound, errors.New(h.String()))
	}
	return b.existing.DeepCopy(), nil
}

func (b *fakeBackend) Conditions(_ context.Context, _ Handle) ([]map[string]interface{}, error) {
	b.calls = append(b.calls, "conditions")
	if b.conditionsErr != nil {
		return nil, b.conditionsErr
	}
	if len(b.conditionTimes) == 0 {
		return nil, nil
	}
	idx := b.conditionReads
	if idx >= len(b.conditionTimes) {
		idx = len(b.conditionTimes) - 1
	}
	b.conditionReads++
	out := make([]map[string]interface{}, 0, len(b.conditionTimes[idx]))
	for _, ts := range b.conditionTimes[idx] {
		out = append(out, map[string]interface{}{"type": "ACK.ResourceSynced", "status": "True", "lastTransitionTime": ts})
	}
	return out, nil
}

func (b *fakeBackend) Delete(_ context.Context, _ Handle) error {
	b.calls = append(b.calls, "delete")
	return nil
}

type fakeComponent struct {
	upgradable bool
	active     bool
	required   []string

	statuses  []JobStatus
	statusErr error
	polls     int

	outputs    map[string]string
	outputsErr error
	afterCalls int
}

func (c *fakeComponent) GroupVersionKind() schema.GroupVersionKind { return endpointGVK }
func (c *fakeComponent) RequiredFields() []string                 { return c.required }
func (c *fakeComponent) SupportsUpgrade() bool                    { return c.upgradable }
func (c *fakeComponent) IsActive(_ *unstructured.Unstructured) bool {
	return c.active
}

func (c *fakeComponent) JobStatus(_ context.Context, _ Handle) (JobStatus, error) {
	c.polls++
	if c.statusErr != nil {
		return JobStatus{}, c.statusErr
	}
	idx := c.polls - 1
	if idx >= len(c.statuses) {
		idx = len(c.statuses) - 1
	}
	return c.statuses[idx], nil
}

func (c *fakeComponent) AfterJobComplete(_ context.Context, _ Handle) (map[string]string, error) {
	c.afterCalls++
	return c.outputs, c.outputsErr
}

type recordingWriter struct {
	writes map[string]string
	err    error
}

func (w *recordingWriter) Write(name, destination, value string) error {
	if w.err != nil {
		return w.err
	}
	if w.writes == nil {
		w.writes = map[string]string{}
	}
	w.writes[name+"->"+destination] = value
	return nil
}

func endpointDocument(name string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"spec": map[string]interface{}{
			"endpointName":       name,
			"endpointConfigName": name + "-config",
		},
	}}
	obj.SetGroupVersionKind(endpointGVK)
	obj.SetNamespace("ml")
	obj.SetName(name)
	return obj
}

func inProgress() JobStatus { return JobStatus{RawStatus: "Creating"} }
func completed() JobStatus  { return JobStatus{RawStatus: "InService", Completed: true} }

func newTestReconciler(backend *fakeBackend, component *fakeComponent, cfg Config) (*StepReconciler, *int) {
	sleeps := 0
	r := NewStepReconciler(backend, component, cfg, WithRunID(func() string { return "run-1" }))
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps++
		return ctx.Err()
	}
	return r, &sleeps
}

// declaringComponent is a fakeComponent that also declares its outputs.
type declaringComponent struct {
	*fakeComponent
	outputNames []string
}

func (c declaringComponent) OutputNames() []string { return c.outputNames }
