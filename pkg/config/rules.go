package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/getmoxy/moxy/pkg/rule"
)

// rulesFilePatterns are the globs LoadRulesDir scans for, relative to the
// rules directory. ** descends into subdirectories.
var rulesFilePatterns = []string{"**/*.yaml", "**/*.yml", "**/*.json"}

// RulesFile binds one client id to an ordered rule list. One file, one
// client.
type RulesFile struct {
	Client string    `json:"client" yaml:"client"`
	Rules  rule.List `json:"rules" yaml:"rules"`
}

// LoadError records one rule file that failed to load. The scan continues
// past failures so one broken file does not take down the rest.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadRulesDir scans dir for rule files and parses each one. Files matching
// *.yaml, *.yml or *.json anywhere under dir are loaded in sorted path order
// so startup is deterministic. Files that fail to parse or validate are
// collected into the returned LoadError slice; the error return is reserved
// for dir itself being unreadable.
func LoadRulesDir(dir string) ([]RulesFile, []LoadError, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("rules directory not found: %s", dir)
		}
		return nil, nil, fmt.Errorf("failed to stat rules directory: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("not a directory: %s", dir)
	}

	var matches []string
	for _, pattern := range rulesFilePatterns {
		found, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, nil, fmt.Errorf("expanding glob pattern %s: %w", pattern, err)
		}
		matches = append(matches, found...)
	}
	sort.Strings(matches)

	var (
		files    []RulesFile
		failures []LoadError
	)
	for _, path := range matches {
		rf, err := LoadRulesFile(path)
		if err != nil {
			failures = append(failures, LoadError{Path: path, Err: err})
			continue
		}
		files = append(files, *rf)
	}
	return files, failures, nil
}

// LoadRulesFile parses and validates one rule file. The document is checked
// against the embedded schema first, then each rule is validated
// semantically. Rules only reach the caller when the whole file is valid.
func LoadRulesFile(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ErrEmptyFile
	}

	format := FormatForPath(path)

	// Decode generically first so the schema sees the document as written,
	// then decode into the typed model.
	var doc any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
	default:
		if !json.Valid(data) {
			return nil, ErrInvalidJSON
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	}

	if issues := ValidateRulesDocument(doc); len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, issue := range issues {
			msgs[i] = issue.String()
		}
		return nil, fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
	}

	rf := &RulesFile{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, rf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
	default:
		if err := json.Unmarshal(data, rf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	}

	if errs := rf.Rules.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid rules: %w", errors.Join(errs...))
	}
	return rf, nil
}
