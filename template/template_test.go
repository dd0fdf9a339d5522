package template

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const endpointTemplate = `apiVersion: sagemaker.services.k8s.aws/v1alpha1
kind: Endpoint
metadata:
  name: {{ .endpoint_name | lower }}
spec:
  endpointName: {{ .endpoint_name }}
  endpointConfigName: {{ .endpoint_config_name }}
  tags: {{ .tags | default "[]" }}
`

func TestRender(t *testing.T) {
	values := map[string]interface{}{
		"endpoint_name":        "Churn",
		"endpoint_config_name": "churn-cfg",
		"tags":                 `[{"key": "team", "value": "ml"}]`,
	}
	obj, err := Render("endpoint", []byte(endpointTemplate), values)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if obj.GetKind() != "Endpoint" || obj.GetName() != "churn" {
		t.Fatalf("unexpected object %s/%s", obj.GetKind(), obj.GetName())
	}
	spec := obj.Object["spec"].(map[string]interface{})
	want := map[string]interface{}{
		"endpointName":       "Churn",
		"endpointConfigName": "churn-cfg",
		"tags":               []interface{}{map[string]interface{}{"key": "team", "value": "ml"}},
	}
	if diff := cmp.Diff(want, spec); diff != "" {
		t.Fatalf("spec mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderMissingValue(t *testing.T) {
	_, err := Render("endpoint", []byte(endpointTemplate), map[string]interface{}{"endpoint_name": "x"})
	if err == nil || !strings.Contains(err.Error(), "endpoint_config_name") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestRenderEmptyDocument(t *testing.T) {
	if _, err := Render("empty", []byte("# nothing here\n"), nil); err == nil {
		t.Fatalf("expected error for empty document")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoint.yaml")
	if err := os.WriteFile(path, []byte(endpointTemplate), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := Load(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != endpointTemplate {
		t.Fatalf("unexpected template content")
	}
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

type stubFetcher struct{ refs []string }

func (s *stubFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	s.refs = append(s.refs, ref)
	return []byte("kind: Model\n"), nil
}

func TestLoadFromRegistry(t *testing.T) {
	f := &stubFetcher{}
	data, err := Load(context.Background(), "oci://ghcr.io/apollo/templates@sha256:abc", f)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != "kind: Model\n" {
		t.Fatalf("unexpected data %q", data)
	}
	if diff := cmp.Diff([]string{"ghcr.io/apollo/templates@sha256:abc"}, f.refs); diff != "" {
		t.Fatalf("refs mismatch (-want +got):\n%s", diff)
	}
	if _, err := Load(context.Background(), "oci://ghcr.io/x@sha256:abc", nil); err == nil {
		t.Fatalf("expected error without a fetcher")
	}
}

func TestValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.yaml")
	if err := os.WriteFile(path, []byte("endpoint_name: churn\ninstance_count: 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	base, err := LoadValuesFile(path)
	if err != nil {
		t.Fatalf("load values: %v", err)
	}
	merged, err := MergeValues(base, []string{"endpoint_name=churn-v2", "role_arn=arn:aws:iam::1:role/x=y"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	want := map[string]interface{}{
		"endpoint_name":  "churn-v2",
		"instance_count": float64(2),
		"role_arn":       "arn:aws:iam::1:role/x=y",
	}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	if _, err := MergeValues(nil, []string{"novalue"}); err == nil {
		t.Fatalf("expected error for malformed pair")
	}
}
