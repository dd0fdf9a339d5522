package outputs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func TestEvaluate(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"spec": map[string]interface{}{"modelName": "xgb"},
		"status": map[string]interface{}{
			"ackResourceMetadata": map[string]interface{}{"arn": "arn:aws:sagemaker:us-east-1:1:model/xgb"},
		},
	}}
	got, err := Evaluate(obj, map[string]string{
		"model_name":             "{.spec.modelName}",
		"sagemaker_resource_arn": "{.status.ackResourceMetadata.arn}",
		"missing":                "{.status.modelArtifacts.s3ModelArtifacts}",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := map[string]string{
		"model_name":             "xgb",
		"sagemaker_resource_arn": "arn:aws:sagemaker:us-east-1:1:model/xgb",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateBadExpression(t *testing.T) {
	if _, err := Evaluate(&unstructured.Unstructured{Object: map[string]interface{}{}}, map[string]string{"x": "{.spec"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFileWriterCreatesParents(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a", "b", "arn")
	if err := (FileWriter{}).Write("arn", dest, "arn:x"); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "arn:x" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestParseDestinations(t *testing.T) {
	got, err := ParseDestinations([]string{"model_name=/tmp/out/model", " arn = /tmp/out/arn "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := map[string]string{"model_name": "/tmp/out/model", "arn": "/tmp/out/arn"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("destinations mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range [][]string{{"novalue"}, {"=path"}, {"name="}, {"a=1", "a=2"}} {
		if _, err := ParseDestinations(bad); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestDestinationsFlag(t *testing.T) {
	var f DestinationsFlag
	if err := f.Set("a=/x"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := f.Set("bad"); err == nil {
		t.Fatalf("expected error for missing =")
	}
	m, err := f.Map()
	if err != nil || m["a"] != "/x" {
		t.Fatalf("unexpected map %v err %v", m, err)
	}
}
