package components

import (
	v1alpha1 "github.com/apollo/ackstep/api/sagemaker/v1alpha1"
	"github.com/apollo/ackstep/controller/reconcilers"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func init() {
	register(definition{
		kind:     v1alpha1.KindTrainingJob,
		required: []string{"spec.trainingJobName", "spec.roleARN", "spec.algorithmSpecification"},
		outputs: map[string]string{
			"job_name":           "{.spec.trainingJobName}",
			"model_artifact_url": "{.status.modelArtifacts.s3ModelArtifacts}",
			"training_image":     "{.spec.algorithmSpecification.trainingImage}",
		},
		status: trainingJobStatus,
	})
	register(definition{
		kind:     v1alpha1.KindModel,
		required: []string{"spec.modelName", "spec.executionRoleARN"},
		outputs:  map[string]string{"model_name": "{.spec.modelName}"},
		status:   arnReady,
	})
	register(definition{
		kind:     v1alpha1.KindEndpointConfig,
		required: []string{"spec.endpointConfigName", "spec.productionVariants"},
		outputs:  map[string]string{"endpoint_config_name": "{.spec.endpointConfigName}"},
		status:   arnReady,
	})
	register(definition{
		kind:       v1alpha1.KindEndpoint,
		required:   []string{"spec.endpointName", "spec.endpointConfigName"},
		outputs:    map[string]string{"endpoint_name": "{.spec.endpointName}"},
		upgradable: true,
		status:     endpointStatus,
		active: func(obj *unstructured.Unstructured) bool {
			var st v1alpha1.EndpointStatus
			found, err := v1alpha1.StatusInto(obj, &st)
			return err == nil && found && st.EndpointStatus == v1alpha1.EndpointInService
		},
	})
}

func trainingJobStatus(obj *unstructured.Unstructured) (reconcilers.JobStatus, error) {
	var st v1alpha1.TrainingJobStatus
	if _, err := v1alpha1.StatusInto(obj, &st); err != nil {
		return reconcilers.JobStatus{}, err
	}
	raw := string(st.TrainingJobStatus)
	switch st.TrainingJobStatus {
	case v1alpha1.TrainingJobCompleted:
		return reconcilers.JobStatus{RawStatus: raw, Completed: true}, nil
	case v1alpha1.TrainingJobFailed, v1alpha1.TrainingJobStopped:
		msg := st.FailureReason
		if msg == "" {
			msg = "training job " + raw
		}
		return reconcilers.JobStatus{RawStatus: raw, Completed: true, HasError: true, ErrorMessage: msg}, nil
	}
	if st.SecondaryStatus != "" {
		raw = raw + "/" + st.SecondaryStatus
	}
	return reconcilers.JobStatus{RawStatus: raw}, nil
}

func endpointStatus(obj *unstructured.Unstructured) (reconcilers.JobStatus, error) {
	var st v1alpha1.EndpointStatus
	if _, err := v1alpha1.StatusInto(obj, &st); err != nil {
		return reconcilers.JobStatus{}, err
	}
	raw := string(st.EndpointStatus)
	switch st.EndpointStatus {
	case v1alpha1.EndpointInService:
		return reconcilers.JobStatus{RawStatus: raw, Completed: true}, nil
	case v1alpha1.EndpointFailed, v1alpha1.EndpointOutOfService:
		msg := st.FailureReason
		if msg == "" {
			msg = "endpoint " + raw
		}
		return reconcilers.JobStatus{RawStatus: raw, Completed: true, HasError: true, ErrorMessage: msg}, nil
	}
	return reconcilers.JobStatus{RawStatus: raw}, nil
}

// Models and endpoint configs are created synchronously by the service; the ARN
// appearing is their completion signal.
func arnReady(obj *unstructured.Unstructured) (reconcilers.JobStatus, error) {
	var st v1alpha1.ResourceStatus
	if _, err := v1alpha1.StatusInto(obj, &st); err != nil {
		return reconcilers.JobStatus{}, err
	}
	if st.ARN() == "" {
		return reconcilers.JobStatus{RawStatus: "Creating"}, nil
	}
	return reconcilers.JobStatus{RawStatus: "Created", Completed: true}, nil
}
