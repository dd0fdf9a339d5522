package reconcilers

import (
	"errors"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

// ValidateRequest checks req against the component before anything touches the cluster.
// All problems are reported together.
func ValidateRequest(req Request, component Component) error {
	if req.Document == nil {
		return errors.New("request document is required")
	}
	var errs []error
	obj := req.Document
	gvk := component.GroupVersionKind()
	if obj.GroupVersionKind() != gvk {
		errs = append(errs, fmt.Errorf("document is %s, expected %s", obj.GroupVersionKind(), gvk))
	}
	if obj.GetName() == "" {
		errs = append(errs, errors.New("metadata.name is required"))
	}
	for _, path := range component.RequiredFields() {
		if !fieldPresent(obj, path) {
			errs = append(errs, fmt.Errorf("%s is required", path))
		}
	}
	var known sets.Set[string]
	var knownNames []string
	if declarer, ok := component.(OutputDeclarer); ok {
		knownNames = declarer.OutputNames()
		known = sets.New(knownNames...)
	}
	for _, name := range sets.List(sets.KeySet(req.Outputs)) {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("output name must not be empty"))
			continue
		}
		if known != nil && !known.Has(name) {
			errs = append(errs, fmt.Errorf("unknown output %q for %s (known: %s)", name, gvk.Kind, strings.Join(knownNames, ", ")))
		}
		if strings.TrimSpace(req.Outputs[name]) == "" {
			errs = append(errs, fmt.Errorf("output %q has no destination", name))
		}
	}
	return utilerrors.NewAggregate(errs)
}

func fieldPresent(obj *unstructured.Unstructured, path string) bool {
	v, found, err := unstructured.NestedFieldNoCopy(obj.Object, strings.Split(path, ".")...)
	if err != nil || !found || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	return true
}
