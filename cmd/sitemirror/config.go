package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// yamlConfig is a kong configuration loader. Keys match flag names with
// dashes or underscores; lists become comma separated flag values so kong's
// own decoders handle every type.
func yamlConfig(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	normalized := make(map[string]string, len(values))
	for key, value := range values {
		if value == nil {
			continue
		}
		rendered, err := renderValue(value)
		if err != nil {
			return nil, fmt.Errorf("config key %q: %w", key, err)
		}
		normalized[normalizeKey(key)] = rendered
	}

	var resolver kong.ResolverFunc = func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		value, ok := normalized[normalizeKey(flag.Name)]
		if !ok {
			return nil, nil
		}
		return value, nil
	}
	return resolver, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "-", "_"))
}

func renderValue(value any) (string, error) {
	switch v := value.(type) {
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			rendered, err := renderValue(item)
			if err != nil {
				return "", err
			}
			items = append(items, rendered)
		}
		return strings.Join(items, ","), nil
	case map[string]any:
		return "", fmt.Errorf("nested maps are not supported")
	default:
		return fmt.Sprint(v), nil
	}
}
