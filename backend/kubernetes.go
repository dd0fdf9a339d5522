// Package backend submits ACK resources to a Kubernetes cluster and reads them back.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/apollo/ackstep/controller/reconcilers"
	"github.com/apollo/ackstep/pkg/conditions"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// DefaultFieldOwner is the field manager used for server-side apply.
const DefaultFieldOwner = "ackstep"

// Kubernetes implements reconcilers.ResourceBackend on a controller-runtime client.
type Kubernetes struct {
	client     client.Client
	fieldOwner string
}

// New wraps an existing client.
func New(c client.Client, fieldOwner string) *Kubernetes {
	if fieldOwner == "" {
		fieldOwner = DefaultFieldOwner
	}
	return &Kubernetes{client: c, fieldOwner: fieldOwner}
}

// NewForConfig builds a client for cfg using scheme.
func NewForConfig(cfg *rest.Config, scheme *runtime.Scheme, fieldOwner string) (*Kubernetes, error) {
	c, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("build client: %w", err)
	}
	return New(c, fieldOwner), nil
}

// CreateOrUpdate applies obj with server-side apply. A missing object is
// created first; servers without apply support get a plain create or update.
func (k *Kubernetes) CreateOrUpdate(ctx context.Context, obj *unstructured.Unstructured) (reconcilers.Handle, error) {
	h := reconcilers.HandleFor(obj)
	err := k.apply(ctx, obj)
	if err == nil || !apierrors.IsNotFound(err) {
		return h, err
	}

	log.FromContext(ctx).V(1).Info("resource not found on apply, creating", "resource", h.String())
	created := obj.DeepCopy()
	created.SetResourceVersion("")
	created.SetManagedFields(nil)
	if err := k.client.Create(ctx, created, client.FieldOwner(k.fieldOwner)); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return h, err
		}
		// Created concurrently; apply again over the winner.
		return h, k.apply(ctx, obj)
	}
	return h, nil
}

func (k *Kubernetes) apply(ctx context.Context, obj *unstructured.Unstructured) error {
	desired := obj.DeepCopy()
	desired.SetResourceVersion("")
	desired.SetManagedFields(nil)

	applyOpts := []client.PatchOption{client.FieldOwner(k.fieldOwner), client.ForceOwnership}
	if err := k.client.Patch(ctx, desired, client.Apply, applyOpts...); err != nil {
		if isApplyNotSupported(err) {
			log.FromContext(ctx).V(1).Info("server-side apply unavailable, falling back to create/update")
			return k.upsertWithoutSSA(ctx, obj.DeepCopy())
		}
		return err
	}
	return nil
}

func (k *Kubernetes) upsertWithoutSSA(ctx context.Context, desired *unstructured.Unstructured) error {
	desired.SetResourceVersion("")
	desired.SetManagedFields(nil)

	err := k.client.Create(ctx, desired, client.FieldOwner(k.fieldOwner))
	if err == nil || !apierrors.IsAlreadyExists(err) {
		return err
	}

	current := reconcilers.HandleFor(desired).Object()
	if err := k.client.Get(ctx, client.ObjectKeyFromObject(desired), current); err != nil {
		return err
	}

	current.SetLabels(desired.GetLabels())
	current.SetAnnotations(desired.GetAnnotations())
	if spec, ok := desired.Object["spec"]; ok {
		current.Object["spec"] = spec
	}

	return k.client.Update(ctx, current, client.FieldOwner(k.fieldOwner))
}

func isApplyNotSupported(err error) bool {
	return strings.Contains(err.Error(), "apply patches are not supported")
}

// Get returns the live object addressed by h.
func (k *Kubernetes) Get(ctx context.Context, h reconcilers.Handle) (*unstructured.Unstructured, error) {
	obj := h.Object()
	if err := k.client.Get(ctx, h.Key, obj); err != nil {
		return nil, wrapNotFound(h, err)
	}
	return obj, nil
}

// Conditions returns status.conditions of the live object addressed by h.
func (k *Kubernetes) Conditions(ctx context.Context, h reconcilers.Handle) ([]map[string]interface{}, error) {
	obj, err := k.Get(ctx, h)
	if err != nil {
		return nil, err
	}
	return conditions.FromUnstructured(obj)
}

// Delete removes the object addressed by h and its dependents.
func (k *Kubernetes) Delete(ctx context.Context, h reconcilers.Handle) error {
	policy := metav1.DeletePropagationBackground
	if err := k.client.Delete(ctx, h.Object(), &client.DeleteOptions{PropagationPolicy: &policy}); err != nil {
		return wrapNotFound(h, err)
	}
	return nil
}

func wrapNotFound(h reconcilers.Handle, err error) error {
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("%s: %w", h, reconcilers.ErrNotFound)
	}
	return err
}

var _ reconcilers.ResourceBackend = (*Kubernetes)(nil)
