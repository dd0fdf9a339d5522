// Copyright 2025 Apollo
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import corev1 "k8s.io/api/core/v1"

// ConditionType represents a typed condition name used on ACK status conditions.
type ConditionType string

const (
	// The resource is in a state that requires human intervention.
	ConditionTerminal ConditionType = "ACK.Terminal"
	// The resource was last synced with the service API.
	ConditionResourceSynced ConditionType = "ACK.ResourceSynced"
	// A retryable error was observed.
	ConditionRecoverable ConditionType = "ACK.Recoverable"
	ConditionAdvisory    ConditionType = "ACK.Advisory"

	ConditionLateInitialized    ConditionType = "ACK.LateInitialized"
	ConditionReferencesResolved ConditionType = "ACK.ReferencesResolved"
)

// Condition mirrors the ACK runtime condition shape. LastTransitionTime is kept
// verbatim so comparisons never depend on timestamp parsing.
type Condition struct {
	Type               ConditionType          `json:"type"`
	Status             corev1.ConditionStatus `json:"status"`
	LastTransitionTime string                 `json:"lastTransitionTime,omitempty"`
	Reason             string                 `json:"reason,omitempty"`
	Message            string                 `json:"message,omitempty"`
}
