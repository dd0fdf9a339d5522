// Copyright 2025 Apollo
// SPDX-License-Identifier: Apache-2.0

// Package v1alpha1 contains the subset of the ACK SageMaker v1alpha1 API that ackstep drives.
// +groupName=sagemaker.services.k8s.aws
package v1alpha1

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var (
	SchemeGroupVersion = schema.GroupVersion{Group: "sagemaker.services.k8s.aws", Version: "v1alpha1"}
	SchemeBuilder      = runtime.NewSchemeBuilder(addKnownTypes)
	AddToScheme        = SchemeBuilder.AddToScheme
)

const (
	KindTrainingJob    = "TrainingJob"
	KindModel          = "Model"
	KindEndpointConfig = "EndpointConfig"
	KindEndpoint       = "Endpoint"
)

// Kinds lists every kind ackstep knows how to drive.
var Kinds = []string{KindTrainingJob, KindModel, KindEndpointConfig, KindEndpoint}

// GroupVersionKind returns the fully qualified kind for a SageMaker kind name.
func GroupVersionKind(kind string) schema.GroupVersionKind {
	return SchemeGroupVersion.WithKind(kind)
}

// The CRDs are owned by the ACK controller, so objects are handled as unstructured.
func addKnownTypes(s *runtime.Scheme) error {
	for _, kind := range Kinds {
		s.AddKnownTypeWithName(SchemeGroupVersion.WithKind(kind), &unstructured.Unstructured{})
		s.AddKnownTypeWithName(SchemeGroupVersion.WithKind(kind+"List"), &unstructured.UnstructuredList{})
	}
	return nil
}
