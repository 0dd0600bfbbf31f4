package commands

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Pull file roots accepted by --pull-files.
const (
	PullRootExternalStorage = "EXTERNAL_STORAGE"
	PullRootAppData         = "APP_DATA"

	pullAggregationTestRun = "TEST_RUN"
)

// parseEnvArgs parses KEY=VALUE pairs. A missing '=' or an empty value is
// rejected. Later duplicates win.
func parseEnvArgs(flag string, values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		key, val, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected KEY=VALUE", flag, v)
		}
		if val == "" {
			return nil, fmt.Errorf("invalid --%s %q: missing value", flag, v)
		}
		out[key] = val
	}
	return out, nil
}

type pullFileConfig struct {
	Pull []pullFileItem `json:"pull"`
}

type pullFileItem struct {
	RelativePath    string `json:"relativePath"`
	AggregationMode string `json:"aggregationMode"`
	PathRoot        string `json:"pathRoot"`
}

// parsePullFiles turns ROOT:PATH values into the JSON pull file config
// sent with the run. It returns "" when values is empty.
func parsePullFiles(values []string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	cfg := pullFileConfig{Pull: make([]pullFileItem, 0, len(values))}
	for _, v := range values {
		parts := strings.Split(v, ":")
		if len(parts) != 2 || parts[1] == "" {
			return "", fmt.Errorf("invalid --pull-files %q: expected ROOT:PATH", v)
		}
		switch parts[0] {
		case PullRootExternalStorage, PullRootAppData:
		default:
			return "", fmt.Errorf("invalid --pull-files root %q: expected %s or %s", parts[0], PullRootExternalStorage, PullRootAppData)
		}
		cfg.Pull = append(cfg.Pull, pullFileItem{
			RelativePath:    parts[1],
			AggregationMode: pullAggregationTestRun,
			PathRoot:        parts[0],
		})
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
