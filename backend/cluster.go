package backend

import (
	"fmt"
	"os"
	"strings"

	v1alpha1 "github.com/apollo/ackstep/api/sagemaker/v1alpha1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/record"
)

// Path of the namespace file mounted into pods with a service account token.
var namespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// NewScheme returns a scheme with the core types and the SageMaker kinds registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("add client-go scheme: %w", err)
	}
	if err := v1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("add sagemaker scheme: %w", err)
	}
	return scheme, nil
}

// Ping verifies the API server is reachable with cfg.
func Ping(cfg *rest.Config) (string, error) {
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return "", fmt.Errorf("build clientset: %w", err)
	}
	info, err := cs.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("contact api server: %w", err)
	}
	return info.GitVersion, nil
}

// NewEventRecorder returns a recorder publishing events to the cluster and a
// function that flushes and stops it.
func NewEventRecorder(cfg *rest.Config, scheme *runtime.Scheme, component string) (record.EventRecorder, func(), error) {
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build clientset: %w", err)
	}
	broadcaster := record.NewBroadcaster()
	broadcaster.StartRecordingToSink(&typedcorev1.EventSinkImpl{Interface: cs.CoreV1().Events("")})
	recorder := broadcaster.NewRecorder(scheme, corev1.EventSource{Component: component})
	return recorder, broadcaster.Shutdown, nil
}

// CurrentNamespace returns the namespace of the pod this process runs in, or
// "default" when not running in a pod.
func CurrentNamespace() string {
	data, err := os.ReadFile(namespaceFile)
	if err != nil {
		return corev1.NamespaceDefault
	}
	if ns := strings.TrimSpace(string(data)); ns != "" {
		return ns
	}
	return corev1.NamespaceDefault
}
