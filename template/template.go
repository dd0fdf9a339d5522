// Package template loads resource templates and renders them into documents.
package template

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

const ociScheme = "oci://"

// Fetcher pulls templates from a registry.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Load reads the template at source: a local path, or an oci:// reference
// resolved through fetcher.
func Load(ctx context.Context, source string, fetcher Fetcher) ([]byte, error) {
	if ref, ok := strings.CutPrefix(source, ociScheme); ok {
		if fetcher == nil {
			return nil, fmt.Errorf("no registry fetcher configured for %s", source)
		}
		return fetcher.Fetch(ctx, ref)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return data, nil
}

// Render executes tmpl with values and decodes the result as a single YAML
// document. Referencing a value that was not supplied is an error.
func Render(name string, tmpl []byte, values map[string]interface{}) (*unstructured.Unstructured, error) {
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(string(tmpl))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, values); err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}

	jsonBytes, err := yaml.YAMLToJSON(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("decode rendered %s: %w", name, err)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &obj); err != nil {
		return nil, fmt.Errorf("decode rendered %s: %w", name, err)
	}
	if len(obj) == 0 {
		return nil, fmt.Errorf("template %s rendered an empty document", name)
	}
	return &unstructured.Unstructured{Object: obj}, nil
}
