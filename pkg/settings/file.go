package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// FileStore keeps settings as a flat JSON object. The file is re-read on
// every Get so edits made by another process are picked up.
type FileStore struct {
	path string
	mu   sync.Mutex
	log  zerolog.Logger
}

// NewFileStore returns a store backed by path. The file is created lazily.
func NewFileStore(path string, log zerolog.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

// Get returns the string value of key, or "" when absent
func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read settings: %w", err)
	}
	if len(data) == 0 {
		return "", nil
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("settings file %s is not valid JSON", s.path)
	}
	return gjson.GetBytes(data, gjson.Escape(key)).String(), nil
}

// Set writes key, keeping every other key in the document
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := make(map[string]interface{})
	if data, err := os.ReadFile(s.path); err == nil && len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			s.log.Warn().Err(err).Str("path", s.path).Msg("Discarding unreadable settings file")
			doc = make(map[string]interface{})
		}
	}
	doc[key] = value

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	// write-then-rename so readers never observe a half-written file
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save settings: %w", err)
	}

	s.log.Debug().Str("key", key).Str("path", s.path).Msg("Settings saved")
	return nil
}

// Path returns the settings file path
func (s *FileStore) Path() string {
	return s.path
}

// Close is a no-op; every Set is flushed immediately
func (s *FileStore) Close() error {
	return nil
}
