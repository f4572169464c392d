// Package artifact persists fitted pipeline state (scaler, models, status files) as JSON.
//
// Writes go to a temporary file next to the target and are renamed into place, so
// readers see either the previous artifact or the new one, never a partial file.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	filePermissions = 0o644
	dirPermissions  = 0o755
)

// WriteJSON marshals v and atomically replaces path with the result.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}
	return WriteFile(path, data)
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte) error {
	// Create parent directory if needed
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	// Write to temporary file first (atomic write)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, filePermissions); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// ReadJSON decodes the artifact at path into v. A missing file yields an error
// that satisfies errors.Is(err, os.ErrNotExist).
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal artifact %s: %w", path, err)
	}
	return nil
}

// Exists reports whether an artifact is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Clean removes a stale temp file left behind by an interrupted write.
func Clean(path string) error {
	err := os.Remove(path + ".tmp")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ModelPath returns the artifact path for a (target, algorithm) model.
func ModelPath(dir, target, kind string) string {
	return filepath.Join(dir, fmt.Sprintf("model_%s_%s.json", target, kind))
}

// ScalerPath returns the artifact path for the fitted scaler.
func ScalerPath(dir string) string {
	return filepath.Join(dir, "scaler.json")
}
