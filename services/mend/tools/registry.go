// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"sort"
	"sync"
)

// Registry manages tool registration and lookup.
//
// Tools are indexed by name and by language so the environment can fan a
// symbol out to every tool for the languages an episode covers.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called concurrently.
type Registry struct {
	mu sync.RWMutex

	// byName maps tool names to tool instances.
	byName map[string]Tool

	// byLanguage maps languages to lists of tools.
	byLanguage map[string][]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:     make(map[string]Tool),
		byLanguage: make(map[string][]Tool),
	}
}

// Register adds a tool under its Name() and Language(). A tool with the
// same name replaces the existing registration.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Register(tool Tool) {
	if tool == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	language := tool.Language()

	if existing, ok := r.byName[name]; ok {
		if old := existing.Language(); old != language {
			r.removeFromLanguage(old, name)
		}
	}

	r.byName[name] = tool

	found := false
	for i, t := range r.byLanguage[language] {
		if t.Name() == name {
			r.byLanguage[language][i] = tool
			found = true
			break
		}
	}
	if !found {
		r.byLanguage[language] = append(r.byLanguage[language], tool)
	}
}

// removeFromLanguage removes a tool from a language list.
// Caller must hold the write lock.
func (r *Registry) removeFromLanguage(language, name string) {
	list, ok := r.byLanguage[language]
	if !ok {
		return
	}
	for i, t := range list {
		if t.Name() == name {
			r.byLanguage[language] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Get returns a tool by name.
//
// Outputs:
//
//	Tool - The registered tool, or nil if not found
//	bool - True if the tool was found
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.byName[name]
	return tool, ok
}

// GetByLanguage returns all tools for a language. The returned slice is a
// copy.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) GetByLanguage(language string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list, ok := r.byLanguage[language]
	if !ok {
		return nil
	}
	result := make([]Tool, len(list))
	copy(result, list)
	return result
}

// GetByLanguages returns tools for any of the given languages, deduplicated
// by name.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) GetByLanguages(languages ...string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var result []Tool
	for _, language := range languages {
		for _, tool := range r.byLanguage[language] {
			if !seen[tool.Name()] {
				seen[tool.Name()] = true
				result = append(result, tool)
			}
		}
	}
	return result
}

// Names returns all registered tool names, sorted.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Unregister removes a tool from the registry.
//
// Outputs:
//
//	bool - True if the tool was found and removed
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tool, ok := r.byName[name]
	if !ok {
		return false
	}
	delete(r.byName, name)
	r.removeFromLanguage(tool.Language(), name)
	return true
}

// DefaultRegistry returns a registry pre-loaded with the built-in
// definition tools for every supported language.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewCppDefinitionTool())
	r.Register(NewJavaDefinitionTool())
	return r
}
