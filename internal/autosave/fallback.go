package autosave

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/stemsi/psikotes-backend/internal/model"
)

// FileFallback stores one JSON file per attempt under Dir.
type FileFallback struct {
	Dir string
}

// NewFileFallback creates the directory if needed.
func NewFileFallback(dir string) (*FileFallback, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create fallback dir: %w", err)
	}
	return &FileFallback{Dir: dir}, nil
}

func (f *FileFallback) path(id uuid.UUID) string {
	return filepath.Join(f.Dir, "attempt-"+id.String()+".json")
}

// Save writes the map atomically (temp file + rename).
func (f *FileFallback) Save(attemptID uuid.UUID, answers model.AnswerMap) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.Dir, ".attempt-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path(attemptID))
}

// Load returns the saved map, or an empty one when none exists.
func (f *FileFallback) Load(attemptID uuid.UUID) (model.AnswerMap, error) {
	raw, err := os.ReadFile(f.path(attemptID))
	if errors.Is(err, os.ErrNotExist) {
		return model.AnswerMap{}, nil
	}
	if err != nil {
		return nil, err
	}
	var m model.AnswerMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode local copy: %w", err)
	}
	return m, nil
}

// Clear removes the saved map.
func (f *FileFallback) Clear(attemptID uuid.UUID) error {
	err := os.Remove(f.path(attemptID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
