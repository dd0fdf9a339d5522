package template

import (
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// LoadValuesFile reads a YAML map of template values.
func LoadValuesFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read values file: %w", err)
	}
	values := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse values file %s: %w", path, err)
	}
	return values, nil
}

// MergeValues overlays key=value pairs onto base. Values are kept as strings.
func MergeValues(base map[string]interface{}, pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(base)+len(pairs))
	for k, v := range base {
		out[k] = v
	}
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("value must be key=value, got %q", kv)
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			return nil, fmt.Errorf("value must be key=value, got %q", kv)
		}
		out[key] = parts[1]
	}
	return out, nil
}
