// Package translation serves and edits the UI message files, one YAML file
// per locale, behind /api/translation.
package translation

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/docsite/internal/errors"
	"github.com/conneroisu/docsite/internal/i18n"
)

// Messages is a nested message tree.
type Messages map[string]interface{}

// Store reads and writes <dir>/<locale>.yml files.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) file(locale string) (string, error) {
	if !i18n.ValidCode(locale) {
		return "", errors.NewValidationError(errors.ErrCodeTranslationIO, "invalid locale "+locale)
	}

	return filepath.Join(s.dir, locale+".yml"), nil
}

// Locales lists the locales that have a message file.
func (s *Store) Locales() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.WrapIO(err, errors.ErrCodeTranslationIO, "failed to list translations").
			WithFile(s.dir)
	}

	locales := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".yml" {
			continue
		}
		locale := strings.TrimSuffix(name, ".yml")
		if i18n.ValidCode(locale) {
			locales = append(locales, locale)
		}
	}
	sort.Strings(locales)

	return locales, nil
}

// Get returns the messages for locale. A missing file yields ok=false.
func (s *Store) Get(locale string) (Messages, bool, error) {
	path, err := s.file(locale)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(path)
}

func (s *Store) read(path string) (Messages, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.WrapIO(err, errors.ErrCodeTranslationIO, "failed to read translation").
			WithFile(path)
	}

	msgs := Messages{}
	if err := yaml.Unmarshal(data, &msgs); err != nil {
		return nil, false, errors.WrapConfig(err, errors.ErrCodeTranslationIO, "failed to parse translation").
			WithFile(path)
	}

	return msgs, true, nil
}

// Merge deep-merges update into the messages for locale, creating the file
// when needed, and returns the result.
func (s *Store) Merge(locale string, update Messages) (Messages, error) {
	path, err := s.file(locale)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, _, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = Messages{}
	}
	merge(current, update)

	data, err := yaml.Marshal(current)
	if err != nil {
		return nil, errors.WrapInternal(err, errors.ErrCodeTranslationIO, "failed to encode translation")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeTranslationIO, "failed to create translation dir").
			WithFile(s.dir)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeTranslationIO, "failed to write translation").
			WithFile(tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeTranslationIO, "failed to replace translation").
			WithFile(path)
	}

	return current, nil
}

func merge(dst, src map[string]interface{}) {
	for k, v := range src {
		srcMap, srcIsMap := asMap(v)
		if dstMap, dstIsMap := asMap(dst[k]); srcIsMap && dstIsMap {
			merge(dstMap, srcMap)
			dst[k] = dstMap
			continue
		}
		dst[k] = v
	}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Messages:
		return m, true
	default:
		return nil, false
	}
}
