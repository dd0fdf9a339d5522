// Package outputs evaluates job outputs from live resources and persists them.
package outputs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/util/jsonpath"
)

// Evaluate resolves each JSONPath expression in exprs against obj. Expressions
// that resolve to nothing are left out of the result.
func Evaluate(obj *unstructured.Unstructured, exprs map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(exprs))
	for name, expr := range exprs {
		jp := jsonpath.New(name).AllowMissingKeys(true)
		if err := jp.Parse(expr); err != nil {
			return nil, fmt.Errorf("parse output %s: %w", name, err)
		}
		var buf bytes.Buffer
		if err := jp.Execute(&buf, obj.Object); err != nil {
			return nil, fmt.Errorf("evaluate output %s: %w", name, err)
		}
		if v := buf.String(); v != "" {
			out[name] = v
		}
	}
	return out, nil
}

// FileWriter writes each output to a file, creating parent directories.
type FileWriter struct{}

func (FileWriter) Write(name, destination, value string) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", name, err)
	}
	tmp := destination + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, destination)
}

// DestinationsFlag collects repeated --output name=path flags.
type DestinationsFlag []string

func (d *DestinationsFlag) String() string { return strings.Join(*d, ",") }

func (d *DestinationsFlag) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("output must be name=path")
	}
	*d = append(*d, v)
	return nil
}

func (d *DestinationsFlag) Type() string { return "name=path" }

// Map returns the parsed destinations.
func (d DestinationsFlag) Map() (map[string]string, error) {
	return ParseDestinations([]string(d))
}

// ParseDestinations parses name=path pairs into a map.
func ParseDestinations(args []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, kv := range args {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("output must be name=path")
		}
		name := strings.TrimSpace(parts[0])
		path := strings.TrimSpace(parts[1])
		if name == "" || path == "" {
			return nil, fmt.Errorf("output must be name=path")
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("output %q declared twice", name)
		}
		out[name] = path
	}
	return out, nil
}
