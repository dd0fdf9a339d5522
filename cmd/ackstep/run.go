package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/apollo/ackstep/backend"
	"github.com/apollo/ackstep/components"
	"github.com/apollo/ackstep/controller/reconcilers"
	"github.com/apollo/ackstep/pkg/outputs"
	"github.com/apollo/ackstep/pkg/version"
	"github.com/apollo/ackstep/template"
)

const eventSource = "ackstep"

type runOptions struct {
	kind       string
	source     string
	valuesFile string
	values     []string
	outputs    outputs.DestinationsFlag
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render a resource template, submit it and wait for the job to finish",
		Example: `  ackstep run --kind TrainingJob --template training.yaml \
    --set training_job_name=xgb-42 --set role_arn=arn:aws:iam::123:role/sm \
    --output model_artifact_url=/tmp/outputs/model`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd.Context(), root)
		},
	}
	cmd.Flags().StringVar(&o.kind, "kind", "", "Resource kind to drive (TrainingJob, Model, EndpointConfig, Endpoint)")
	cmd.Flags().StringVar(&o.source, "template", "", "Template path or oci://registry/repo@sha256:digest reference")
	cmd.Flags().StringVar(&o.valuesFile, "values", "", "YAML file with template values")
	cmd.Flags().StringArrayVar(&o.values, "set", nil, "Template value as key=value; repeatable and applied after --values")
	cmd.Flags().Var(&o.outputs, "output", "Output destination as name=path; repeatable")
	return cmd
}

func (o *runOptions) run(ctx context.Context, root *rootOptions) error {
	logger := ctrllog.Log.WithName("ackstep")
	ctx = ctrllog.IntoContext(ctx, logger)
	cfg := root.cfg
	logger.Info("starting", "version", version.String(), "kind", o.kind)

	fatal := func(err error) error {
		logger.Error(err, "initialization failed")
		return &reconcilers.InitError{Err: err}
	}

	if o.kind == "" || o.source == "" {
		return fatal(errors.New("--kind and --template are required"))
	}
	gvk, err := components.GroupVersionKind(o.kind)
	if err != nil {
		return fatal(err)
	}
	dests, err := o.outputs.Map()
	if err != nil {
		return fatal(err)
	}

	values := map[string]interface{}{}
	if o.valuesFile != "" {
		if values, err = template.LoadValuesFile(o.valuesFile); err != nil {
			return fatal(err)
		}
	}
	if values, err = template.MergeValues(values, o.values); err != nil {
		return fatal(err)
	}
	fetcher := template.NewOCIFetcher(logger.WithName("oci"), cfg.TemplateCacheDir)
	fetcher.PlainHTTPHosts = cfg.PlainHTTPHosts
	raw, err := template.Load(ctx, o.source, fetcher)
	if err != nil {
		return fatal(err)
	}
	doc, err := template.Render(gvk.Kind, raw, values)
	if err != nil {
		return fatal(err)
	}
	if doc.GetNamespace() == "" {
		ns := cfg.Namespace
		if ns == "" {
			ns = backend.CurrentNamespace()
		}
		doc.SetNamespace(ns)
	}

	restCfg, err := ctrl.GetConfig()
	if err != nil {
		return fatal(fmt.Errorf("load kubeconfig: %w", err))
	}
	serverVersion, err := backend.Ping(restCfg)
	if err != nil {
		return fatal(err)
	}
	logger.V(1).Info("connected to cluster", "serverVersion", serverVersion)
	kube, err := clusterBackend(cfg)
	if err != nil {
		return fatal(err)
	}
	component, err := components.New(gvk.Kind, kube)
	if err != nil {
		return fatal(err)
	}
	scheme, err := backend.NewScheme()
	if err != nil {
		return fatal(err)
	}
	recorder, stopEvents, err := backend.NewEventRecorder(restCfg, scheme, eventSource)
	if err != nil {
		return fatal(err)
	}
	defer stopEvents()

	engine := reconcilers.NewStepReconciler(kube, component, cfg.Reconciler(), reconcilers.WithRecorder(recorder))
	req := reconcilers.Request{Document: doc, Outputs: dests}

	var outcome reconcilers.Outcome
	if err := serveMetricsWhile(ctx, cfg.MetricsBindAddress, func(ctx context.Context) {
		outcome = engine.Reconcile(ctx, req)
	}); err != nil {
		logger.V(1).Info("metrics server exited with error", "error", err.Error())
	}

	if outcome.Kind == reconcilers.OutcomeFatalInit {
		return fatal(outcome.Err)
	}
	return reconcilers.NewReporter(outputs.FileWriter{}).Report(ctx, outcome, dests)
}

// serveMetricsWhile runs fn while serving metrics on addr. An empty addr or
// "0" disables the listener. A listener failure is logged and returned once fn
// is done; it never cancels fn.
func serveMetricsWhile(ctx context.Context, addr string, fn func(ctx context.Context)) error {
	if addr == "" || addr == "0" {
		fn(ctx)
		return nil
	}
	logger := ctrllog.FromContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", &healthz.Handler{Checks: map[string]healthz.Checker{"ping": healthz.Ping}})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	var g errgroup.Group
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "metrics server failed, continuing without metrics", "addr", addr)
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-serverCtx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	})

	fn(ctx)
	stopServer()
	return g.Wait()
}
