// Copyright 2025 Apollo
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// Annotation stamped on every submitted resource with the id of the run that submitted it.
const RunIDAnnotation = "ackstep.apollo.io/run-id"

// ACKResourceMetadata is populated by the ACK controller once the service resource exists.
type ACKResourceMetadata struct {
	ARN            string `json:"arn,omitempty"`
	OwnerAccountID string `json:"ownerAccountID,omitempty"`
	Region         string `json:"region,omitempty"`
}

// ResourceStatus holds the status fields shared by every ACK resource.
type ResourceStatus struct {
	ACKResourceMetadata *ACKResourceMetadata `json:"ackResourceMetadata,omitempty"`
	Conditions          []Condition          `json:"conditions,omitempty"`
}

// ARN returns the service ARN, or "" when the controller has not reported one yet.
func (s ResourceStatus) ARN() string {
	if s.ACKResourceMetadata == nil {
		return ""
	}
	return s.ACKResourceMetadata.ARN
}

type TrainingJobStatusValue string

const (
	TrainingJobInProgress TrainingJobStatusValue = "InProgress"
	TrainingJobCompleted  TrainingJobStatusValue = "Completed"
	TrainingJobFailed     TrainingJobStatusValue = "Failed"
	TrainingJobStopping   TrainingJobStatusValue = "Stopping"
	TrainingJobStopped    TrainingJobStatusValue = "Stopped"
)

type ModelArtifacts struct {
	S3ModelArtifacts string `json:"s3ModelArtifacts,omitempty"`
}

// TrainingJobStatus defines the observed state of a TrainingJob.
type TrainingJobStatus struct {
	ResourceStatus `json:",inline"`

	TrainingJobStatus TrainingJobStatusValue `json:"trainingJobStatus,omitempty"`
	SecondaryStatus   string                 `json:"secondaryStatus,omitempty"`
	FailureReason     string                 `json:"failureReason,omitempty"`
	ModelArtifacts    *ModelArtifacts        `json:"modelArtifacts,omitempty"`
}

type EndpointStatusValue string

const (
	EndpointOutOfService   EndpointStatusValue = "OutOfService"
	EndpointCreating       EndpointStatusValue = "Creating"
	EndpointUpdating       EndpointStatusValue = "Updating"
	EndpointSystemUpdating EndpointStatusValue = "SystemUpdating"
	EndpointRollingBack    EndpointStatusValue = "RollingBack"
	EndpointInService      EndpointStatusValue = "InService"
	EndpointDeleting       EndpointStatusValue = "Deleting"
	EndpointFailed         EndpointStatusValue = "Failed"
)

// EndpointStatus defines the observed state of an Endpoint.
type EndpointStatus struct {
	ResourceStatus `json:",inline"`

	EndpointStatus EndpointStatusValue `json:"endpointStatus,omitempty"`
	FailureReason  string              `json:"failureReason,omitempty"`
}

// StatusInto decodes status of obj into out. A missing status leaves out untouched
// and reports false.
func StatusInto(obj *unstructured.Unstructured, out interface{}) (bool, error) {
	raw, found, err := unstructured.NestedMap(obj.Object, "status")
	if err != nil {
		return false, fmt.Errorf("read status: %w", err)
	}
	if !found {
		return false, nil
	}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(raw, out); err != nil {
		return false, fmt.Errorf("decode %s status: %w", obj.GetKind(), err)
	}
	return true, nil
}
