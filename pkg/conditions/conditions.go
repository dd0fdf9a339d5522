package conditions

import (
	"fmt"

	v1alpha1 "github.com/apollo/ackstep/api/sagemaker/v1alpha1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const lastTransitionTimeField = "lastTransitionTime"

// FindCondition returns the first condition with the given type.
func FindCondition(conditions []v1alpha1.Condition, conditionType v1alpha1.ConditionType) *v1alpha1.Condition {
	for i := range conditions {
		if conditions[i].Type == conditionType {
			return &conditions[i]
		}
	}
	return nil
}

// IsTrue reports whether the condition of the given type is present with status True.
func IsTrue(conditions []v1alpha1.Condition, conditionType v1alpha1.ConditionType) bool {
	c := FindCondition(conditions, conditionType)
	return c != nil && c.Status == corev1.ConditionTrue
}

// FromUnstructured returns status.conditions of obj as raw documents, in order.
// Entries that are not objects are dropped.
func FromUnstructured(obj *unstructured.Unstructured) ([]map[string]interface{}, error) {
	raw, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil {
		return nil, fmt.Errorf("read status.conditions: %w", err)
	}
	if !found {
		return nil, nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// TransitionTimes extracts lastTransitionTime from each condition in order,
// skipping conditions that do not carry one. Values are returned verbatim.
func TransitionTimes(conditions []map[string]interface{}) []string {
	var out []string
	for _, c := range conditions {
		ts, ok := c[lastTransitionTimeField].(string)
		if !ok || ts == "" {
			continue
		}
		out = append(out, ts)
	}
	return out
}

// Advanced reports whether every position of baseline holds a different
// timestamp in current. A position missing from current has not advanced.
// An empty baseline is trivially advanced.
func Advanced(baseline, current []string) bool {
	for i, before := range baseline {
		if i >= len(current) || current[i] == before {
			return false
		}
	}
	return true
}
