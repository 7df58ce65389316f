package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// LoadRaw reads a configuration file into a merged raw map. $include
// directives pull in other files (relative paths resolve against the
// including file), and ${ENV} references in string values are expanded
// after parsing, so the directive keys themselves survive expansion.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	ld := &fileLoader{visiting: map[string]bool{}}
	return ld.load(path)
}

// fileLoader tracks the include chain so cycles fail instead of
// recursing forever.
type fileLoader struct {
	visiting map[string]bool
}

func (ld *fileLoader) load(path string) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if ld.visiting[abs] {
		return nil, fmt.Errorf("config include cycle detected at %s", abs)
	}
	ld.visiting[abs] = true
	defer delete(ld.visiting, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	raw, err := parseConfigBytes(data, abs)
	if err != nil {
		return nil, err
	}
	raw, _ = expandEnvValues(raw).(map[string]any)

	includes, err := takeIncludes(raw)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	for _, inc := range includes {
		if strings.TrimSpace(inc) == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		sub, err := ld.load(inc)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, sub)
	}

	// The including file wins over everything it pulled in.
	return deepMerge(merged, raw), nil
}

// parseConfigBytes picks the parser from the file extension: JSON5 for
// .json/.json5, YAML otherwise.
func parseConfigBytes(data []byte, path string) (map[string]any, error) {
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(&raw); err != nil && err != io.EOF {
			return nil, err
		}
		if err := decoder.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("failed to parse config: expected single document")
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// expandEnvValues substitutes ${VAR} and $VAR in every string value of
// the parsed tree. Keys are left alone.
func expandEnvValues(value any) any {
	switch typed := value.(type) {
	case string:
		return os.ExpandEnv(typed)
	case map[string]any:
		for k, v := range typed {
			typed[k] = expandEnvValues(v)
		}
		return typed
	case []any:
		for i, v := range typed {
			typed[i] = expandEnvValues(v)
		}
		return typed
	default:
		return value
	}
}

// takeIncludes removes the $include directive from raw and returns the
// listed paths. Accepts a single string or a list of strings.
func takeIncludes(raw map[string]any) ([]string, error) {
	value, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	switch typed := value.(type) {
	case string:
		return []string{typed}, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			path, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings")
			}
			paths = append(paths, path)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("include must be a string or list of strings")
	}
}

func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if srcMap, ok := value.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				dst[key] = deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// decodeRawConfig decodes a merged raw map over cfg, leaving fields the
// file does not mention at their current (default) values. Unknown keys
// are rejected.
func decodeRawConfig(raw map[string]any, cfg *Config) error {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("failed to parse config: expected single document")
	}
	return nil
}
