package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// Filters defines which messages are hidden from labeling.
type Filters struct {
	IgnoreSenders           []string `json:"ignoreSenders"`
	IgnoreKeywordsInSubject []string `json:"ignoreKeywordsInSubject"`
	IgnoreKeywordsInBody    []string `json:"ignoreKeywordsInBody"`
}

// Manager handles loading, saving, and accessing filter rules.
type Manager struct {
	filePath string
	filters  *Filters
	mu       sync.RWMutex
}

// NewManager loads the filters at filePath, creating an empty file if there
// is none.
func NewManager(filePath string) (*Manager, error) {
	m := &Manager{
		filePath: filePath,
		filters:  &Filters{},
	}
	if err := m.LoadFilters(); err != nil {
		return nil, fmt.Errorf("loading filters %s: %w", filePath, err)
	}
	return m, nil
}

// LoadFilters loads filter rules from the JSON file.
func (m *Manager) LoadFilters() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.filters = &Filters{
				IgnoreSenders:           []string{},
				IgnoreKeywordsInSubject: []string{},
				IgnoreKeywordsInBody:    []string{},
			}
			return m.saveFilters()
		}
		return err
	}

	var filters Filters
	if err := json.Unmarshal(data, &filters); err != nil {
		return err
	}
	m.filters = &filters
	return nil
}

// saveFilters writes the rules back. Callers hold m.mu.
func (m *Manager) saveFilters() error {
	data, err := json.MarshalIndent(m.filters, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(m.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(m.filePath, data, 0644)
}

// GetFilters returns a copy of the current filters.
func (m *Manager) GetFilters() Filters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Filters{
		IgnoreSenders:           slices.Clone(m.filters.IgnoreSenders),
		IgnoreKeywordsInSubject: slices.Clone(m.filters.IgnoreKeywordsInSubject),
		IgnoreKeywordsInBody:    slices.Clone(m.filters.IgnoreKeywordsInBody),
	}
}

// AddIgnoreSender adds a sender to the ignore list and saves.
func (m *Manager) AddIgnoreSender(sender string) error {
	return m.add(func(f *Filters) *[]string { return &f.IgnoreSenders }, sender)
}

// RemoveIgnoreSender removes a sender from the ignore list and saves.
func (m *Manager) RemoveIgnoreSender(sender string) error {
	return m.remove(func(f *Filters) *[]string { return &f.IgnoreSenders }, sender)
}

func (m *Manager) AddIgnoreKeywordInSubject(keyword string) error {
	return m.add(func(f *Filters) *[]string { return &f.IgnoreKeywordsInSubject }, keyword)
}

func (m *Manager) RemoveIgnoreKeywordInSubject(keyword string) error {
	return m.remove(func(f *Filters) *[]string { return &f.IgnoreKeywordsInSubject }, keyword)
}

func (m *Manager) AddIgnoreKeywordInBody(keyword string) error {
	return m.add(func(f *Filters) *[]string { return &f.IgnoreKeywordsInBody }, keyword)
}

func (m *Manager) RemoveIgnoreKeywordInBody(keyword string) error {
	return m.remove(func(f *Filters) *[]string { return &f.IgnoreKeywordsInBody }, keyword)
}

func (m *Manager) add(field func(*Filters) *[]string, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := field(m.filters)
	if slices.Contains(*list, value) {
		return nil
	}
	*list = append(*list, value)
	return m.saveFilters()
}

func (m *Manager) remove(field func(*Filters) *[]string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := field(m.filters)
	i := slices.Index(*list, value)
	if i < 0 {
		return nil
	}
	*list = slices.Delete(*list, i, i+1)
	return m.saveFilters()
}

// Match reports whether a message is hidden by a rule, and which one.
// Matching is a case-insensitive substring test.
func (m *Manager) Match(sender, subject, body string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rule, ok := firstContained(sender, m.filters.IgnoreSenders); ok {
		return "sender rule: " + rule, true
	}
	if rule, ok := firstContained(subject, m.filters.IgnoreKeywordsInSubject); ok {
		return "subject keyword: " + rule, true
	}
	if rule, ok := firstContained(body, m.filters.IgnoreKeywordsInBody); ok {
		return "body keyword: " + rule, true
	}
	return "", false
}

func firstContained(s string, rules []string) (string, bool) {
	lower := strings.ToLower(s)
	for _, rule := range rules {
		if rule != "" && strings.Contains(lower, strings.ToLower(rule)) {
			return rule, true
		}
	}
	return "", false
}
