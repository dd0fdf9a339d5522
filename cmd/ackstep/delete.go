package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/types"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/apollo/ackstep/backend"
	"github.com/apollo/ackstep/components"
	"github.com/apollo/ackstep/controller/reconcilers"
)

type deleteOptions struct {
	kind string
	name string
}

func newDeleteCmd(root *rootOptions) *cobra.Command {
	o := &deleteOptions{}
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a resource previously submitted by run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd.Context(), root)
		},
	}
	cmd.Flags().StringVar(&o.kind, "kind", "", "Resource kind")
	cmd.Flags().StringVar(&o.name, "name", "", "Resource name")
	return cmd
}

func (o *deleteOptions) run(ctx context.Context, root *rootOptions) error {
	logger := ctrllog.Log.WithName("ackstep")
	if o.kind == "" || o.name == "" {
		return &reconcilers.InitError{Err: errors.New("--kind and --name are required")}
	}
	gvk, err := components.GroupVersionKind(o.kind)
	if err != nil {
		return &reconcilers.InitError{Err: err}
	}
	ns := root.cfg.Namespace
	if ns == "" {
		ns = backend.CurrentNamespace()
	}
	kube, err := clusterBackend(root.cfg)
	if err != nil {
		return &reconcilers.InitError{Err: err}
	}

	h := reconcilers.Handle{GVK: gvk, Key: types.NamespacedName{Namespace: ns, Name: o.name}}
	if err := kube.Delete(ctx, h); err != nil {
		if errors.Is(err, reconcilers.ErrNotFound) {
			logger.Info("resource already gone", "resource", h.String())
			return nil
		}
		return &reconcilers.JobFailedError{Handle: h, Err: err}
	}
	logger.Info("deleted resource", "resource", h.String())
	return nil
}
