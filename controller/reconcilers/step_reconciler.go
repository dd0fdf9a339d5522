package reconcilers

import (
	"context"
	"errors"
	"fmt"
	"time"

	v1alpha1 "github.com/apollo/ackstep/api/sagemaker/v1alpha1"
	"github.com/apollo/ackstep/pkg/conditions"
	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

//+kubebuilder:rbac:groups=sagemaker.services.k8s.aws,resources=trainingjobs;models;endpointconfigs;endpoints,verbs=get;create;update;patch;delete
//+kubebuilder:rbac:groups="",resources=events,verbs=create;patch

// StepReconciler drives one resource from submission to a terminal outcome.
type StepReconciler struct {
	Backend   ResourceBackend
	Component Component
	Config    Config
	Recorder  record.EventRecorder

	newRunID func() string
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// Option customizes a StepReconciler.
type Option func(*StepReconciler)

// WithRecorder emits Kubernetes events for lifecycle milestones.
func WithRecorder(recorder record.EventRecorder) Option {
	return func(r *StepReconciler) { r.Recorder = recorder }
}

// WithRunID overrides run id generation.
func WithRunID(fn func() string) Option {
	return func(r *StepReconciler) { r.newRunID = fn }
}

// NewStepReconciler constructs a reconciler for one component.
func NewStepReconciler(backend ResourceBackend, component Component, cfg Config, opts ...Option) *StepReconciler {
	r := &StepReconciler{
		Backend:   backend,
		Component: component,
		Config:    cfg,
		newRunID:  func() string { return uuid.NewString() },
		sleep:     sleepWithContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile validates, submits and polls the resource described by req until it
// reaches a terminal outcome. It never returns before the job is terminal, the
// context is cancelled, or an error is observed.
func (r *StepReconciler) Reconcile(ctx context.Context, req Request) Outcome {
	start := r.now()
	kind := r.Component.GroupVersionKind().Kind
	runID := r.newRunID()
	logger := log.FromContext(ctx).WithValues("kind", kind, "runID", runID)

	if err := ValidateRequest(req, r.Component); err != nil {
		logger.Error(err, "request is invalid")
		reconcileOutcomes.WithLabelValues(kind, string(OutcomeFatalInit)).Inc()
		return fatalInit(err)
	}

	desired := req.Document.DeepCopy()
	handle := HandleFor(desired)
	logger = logger.WithValues("resource", handle.Key)
	ctx = log.IntoContext(ctx, logger)

	outcome := r.run(ctx, desired, runID)

	reconcileOutcomes.WithLabelValues(kind, string(outcome.Kind)).Inc()
	reconcileDuration.WithLabelValues(kind).Observe(r.now().Sub(start).Seconds())
	switch outcome.Kind {
	case OutcomeSucceeded:
		r.event(outcome.Handle, corev1.EventTypeNormal, "JobSucceeded", "Job completed")
		logger.Info("reconcile complete", "outputs", len(outcome.Outputs))
	case OutcomeFailed:
		r.event(handle, corev1.EventTypeWarning, "JobFailed", outcome.Reason())
		logger.Info("reconcile failed", "reason", outcome.Reason())
	}
	return outcome
}

func (r *StepReconciler) run(ctx context.Context, desired *unstructured.Unstructured, runID string) Outcome {
	handle := HandleFor(desired)

	upgrade, baseline, err := r.detectUpgrade(ctx, handle)
	if err != nil {
		return failed(handle, err)
	}

	handle, err = r.submit(ctx, desired, runID, upgrade)
	if err != nil {
		return failed(HandleFor(desired), err)
	}

	return r.poll(ctx, handle, upgrade, baseline)
}

// detectUpgrade decides whether the submission updates an existing active
// resource. The baseline is captured before anything is submitted. A read
// error other than not-found is returned before anything is changed and ends
// the run as Failed.
func (r *StepReconciler) detectUpgrade(ctx context.Context, h Handle) (bool, ConditionBaseline, error) {
	logger := log.FromContext(ctx)
	if !r.Component.SupportsUpgrade() {
		return false, nil, nil
	}

	existing, err := r.Backend.Get(ctx, h)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.V(1).Info("resource does not exist, creating")
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("read existing %s: %w", h, err)
	}
	if !r.Component.IsActive(existing) {
		logger.Info("existing resource is not active, submitting without upgrade verification")
		return false, nil, nil
	}

	conds, err := r.Backend.Conditions(ctx, h)
	if err != nil {
		return false, nil, fmt.Errorf("read conditions of %s: %w", h, err)
	}
	baseline := ConditionBaseline(conditions.TransitionTimes(conds))
	logger.Info("upgrading active resource", "baseline", []string(baseline))
	return true, baseline, nil
}

func (r *StepReconciler) submit(ctx context.Context, desired *unstructured.Unstructured, runID string, upgrade bool) (Handle, error) {
	logger := log.FromContext(ctx)

	annotations := desired.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[v1alpha1.RunIDAnnotation] = runID
	desired.SetAnnotations(annotations)

	h, err := r.Backend.CreateOrUpdate(ctx, desired)
	if err != nil {
		logger.Error(err, "submission rejected")
		return Handle{}, fmt.Errorf("submit %s: %w", HandleFor(desired), err)
	}
	logger.Info("submitted resource", "upgrade", upgrade)
	r.event(h, corev1.EventTypeNormal, "Submitted", "Submitted by run %s", runID)
	return h, nil
}

// poll observes the job until it is terminal. Every observation is followed by a
// sleep unless it was terminal; the first poll happens immediately. In upgrade
// mode a completed status only counts once it is read after the conditions
// advanced.
func (r *StepReconciler) poll(ctx context.Context, h Handle, upgrade bool, baseline ConditionBaseline) Outcome {
	logger := log.FromContext(ctx)
	pendingUpgrade := upgrade
	for tick := 1; ; tick++ {
		pollTicks.WithLabelValues(h.GVK.Kind).Inc()

		status, err := r.Component.JobStatus(ctx, h)
		if err != nil {
			logger.Error(err, "status poll failed", "tick", tick)
			return failed(h, fmt.Errorf("poll %s: %w", h, err))
		}
		logger.Info("polled job status", "status", status.RawStatus, "tick", tick)

		if status.HasError {
			msg := status.ErrorMessage
			if msg == "" {
				msg = "job reported an error"
			}
			logger.Error(nil, msg, "status", status.RawStatus)
			return failed(h, &JobError{RawStatus: status.RawStatus, Message: status.ErrorMessage})
		}

		if status.Completed {
			if pendingUpgrade {
				if err := r.verifyUpgrade(ctx, h, baseline); err != nil {
					return failed(h, err)
				}
				// The status read above may predate the update.
				pendingUpgrade = false
				continue
			}
			outputs, err := r.Component.AfterJobComplete(ctx, h)
			if err != nil {
				logger.Error(err, "completion hook failed")
				return failed(h, fmt.Errorf("collect outputs of %s: %w", h, err))
			}
			return succeeded(h, outputs)
		}

		if err := r.sleep(ctx, r.Config.PollInterval); err != nil {
			return failed(h, fmt.Errorf("poll %s: %w", h, err))
		}
	}
}

// verifyUpgrade waits until every baseline condition reports a new transition
// time, bounded by MaxUpgradeChecks and UpgradeTimeout.
func (r *StepReconciler) verifyUpgrade(ctx context.Context, h Handle, baseline ConditionBaseline) error {
	logger := log.FromContext(ctx)
	var deadline time.Time
	if r.Config.UpgradeTimeout > 0 {
		deadline = r.now().Add(r.Config.UpgradeTimeout)
	}

	for attempt := 1; ; attempt++ {
		conds, err := r.Backend.Conditions(ctx, h)
		if err != nil {
			return fmt.Errorf("read conditions of %s: %w", h, err)
		}
		current := conditions.TransitionTimes(conds)
		if conditions.Advanced(baseline, current) {
			logger.Info("upgrade observed", "checks", attempt, "conditions", current)
			r.event(h, corev1.EventTypeNormal, "Upgraded", "Status conditions advanced after %d check(s)", attempt)
			return nil
		}
		logger.V(1).Info("waiting for conditions to advance", "baseline", []string(baseline), "current", current, "check", attempt)

		if r.Config.MaxUpgradeChecks > 0 && attempt >= r.Config.MaxUpgradeChecks {
			return fmt.Errorf("%w after %d check(s)", ErrUpgradeNotObserved, attempt)
		}
		if !deadline.IsZero() && !r.now().Before(deadline) {
			return fmt.Errorf("%w within %s", ErrUpgradeNotObserved, r.Config.UpgradeTimeout)
		}
		if err := r.sleep(ctx, r.Config.upgradeInterval()); err != nil {
			return fmt.Errorf("verify upgrade of %s: %w", h, err)
		}
	}
}

func (r *StepReconciler) event(h Handle, eventType, reason, messageFmt string, args ...interface{}) {
	if r.Recorder == nil || h.Key.Name == "" {
		return
	}
	r.Recorder.Eventf(h.Object(), eventType, reason, messageFmt, args...)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
