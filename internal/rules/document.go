package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type documentRule struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Importance int             `json:"priority"`
	Conditions Conditions      `json:"conditions"`
	Action     json.RawMessage `json:"action"`
}

// LoadDocument reads rule definitions from a rules.json document in
// user order. A missing document is an empty list, not an error.
func LoadDocument(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules document: %w", err)
	}

	var list []Rule
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse rules document %s: %w", path, err)
	}
	return list, nil
}

// SaveDocument rewrites the document with definition fields only,
// dropping any scheduling metadata the rules carry.
func SaveDocument(path string, list []Rule) error {
	doc := make([]documentRule, 0, len(list))
	for _, rule := range list {
		entry := documentRule{
			ID:         rule.ID,
			Name:       rule.Name,
			Importance: rule.Importance,
			Conditions: rule.Conditions,
		}
		if entry.Conditions == nil {
			entry.Conditions = Conditions{}
		}
		if rule.Action != nil {
			encoded, err := json.Marshal(rule.Action)
			if err != nil {
				return fmt.Errorf("encode rule %s action: %w", rule.ID, err)
			}
			entry.Action = encoded
		}
		doc = append(doc, entry)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create rules directory: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp rules document: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp rules document: %w", err)
	}
	return nil
}
