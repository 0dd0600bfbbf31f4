package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// allureResultsDir is where the service places raw Allure results.
const allureResultsDir = "report/allure-results"

var attachmentMarkers = []string{"logs/omni", "video/omni"}

// PatchAllurePaths rewrites attachment sources of Allure result files so
// they point at the downloaded logs and videos relative to the results
// directory. A missing results directory is not an error.
func PatchAllurePaths(outDir string) error {
	dir := filepath.Join(outDir, filepath.FromSlash(allureResultsDir))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := patchAllureFile(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("patch %s: %w", e.Name(), err)
		}
	}
	return nil
}

func patchAllureFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	attachments, _ := doc["attachments"].([]any)
	changed := false
	for _, raw := range attachments {
		att, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		src, ok := att["source"].(string)
		if !ok {
			continue
		}
		if patched, ok := patchSource(src); ok {
			att["source"] = patched
			changed = true
		}
	}
	if !changed {
		return nil
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func patchSource(src string) (string, bool) {
	for _, m := range attachmentMarkers {
		if i := strings.Index(src, m); i >= 0 {
			return "../../" + src[i:], true
		}
	}
	return "", false
}
