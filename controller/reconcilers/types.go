package reconcilers

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
)

// Handle identifies a submitted resource in the cluster.
type Handle struct {
	GVK schema.GroupVersionKind
	Key types.NamespacedName
}

// HandleFor returns the handle addressing obj.
func HandleFor(obj *unstructured.Unstructured) Handle {
	return Handle{
		GVK: obj.GroupVersionKind(),
		Key: types.NamespacedName{Namespace: obj.GetNamespace(), Name: obj.GetName()},
	}
}

func (h Handle) String() string {
	return fmt.Sprintf("%s %s", h.GVK.Kind, h.Key)
}

// Object returns an empty object addressed by h, suitable for reads and event references.
func (h Handle) Object() *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(h.GVK)
	obj.SetNamespace(h.Key.Namespace)
	obj.SetName(h.Key.Name)
	return obj
}

// JobStatus is a single observation of a job. HasError takes precedence over Completed.
type JobStatus struct {
	Completed    bool
	RawStatus    string
	HasError     bool
	ErrorMessage string
}

// ConditionBaseline holds the lastTransitionTime of each status condition, in order,
// as observed before an upgrade was submitted.
type ConditionBaseline []string

// Request is the input of a single reconciliation. The engine never mutates Document.
type Request struct {
	// Document is the fully rendered resource to submit.
	Document *unstructured.Unstructured
	// Outputs maps declared output names to their destinations.
	Outputs map[string]string
}

// ResourceBackend is the cluster-facing storage the engine submits to and reads from.
// Read operations return an error wrapping ErrNotFound when the resource is absent.
type ResourceBackend interface {
	CreateOrUpdate(ctx context.Context, obj *unstructured.Unstructured) (Handle, error)
	Get(ctx context.Context, h Handle) (*unstructured.Unstructured, error)
	Conditions(ctx context.Context, h Handle) ([]map[string]interface{}, error)
	Delete(ctx context.Context, h Handle) error
}

// Component supplies the kind-specific policy for one resource kind.
type Component interface {
	GroupVersionKind() schema.GroupVersionKind
	// RequiredFields lists dotted paths that must be present and non-empty in the document.
	RequiredFields() []string
	// SupportsUpgrade reports whether an existing resource may be upgraded in place.
	SupportsUpgrade() bool
	// IsActive reports whether an existing resource is in its steady, upgradable state.
	IsActive(obj *unstructured.Unstructured) bool
	JobStatus(ctx context.Context, h Handle) (JobStatus, error)
	// AfterJobComplete runs once after a successful completion and returns the produced outputs.
	AfterJobComplete(ctx context.Context, h Handle) (map[string]string, error)
}

// OutputDeclarer is implemented by components that know every output they can
// produce. Requests naming any other output are rejected before submission.
type OutputDeclarer interface {
	OutputNames() []string
}

// OutcomeKind classifies the terminal result of a reconciliation.
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "Succeeded"
	OutcomeFailed    OutcomeKind = "Failed"
	OutcomeFatalInit OutcomeKind = "FatalInitError"
)

// Outcome is the terminal result of a reconciliation.
type Outcome struct {
	Kind    OutcomeKind
	Handle  Handle
	Outputs map[string]string
	Err     error
}

func succeeded(h Handle, outputs map[string]string) Outcome {
	return Outcome{Kind: OutcomeSucceeded, Handle: h, Outputs: outputs}
}

func failed(h Handle, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Handle: h, Err: err}
}

func fatalInit(err error) Outcome {
	return Outcome{Kind: OutcomeFatalInit, Err: err}
}

// Reason returns a short description of the outcome.
func (o Outcome) Reason() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return string(o.Kind)
}
