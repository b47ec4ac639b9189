// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Snippet represents a saved code snippet.
// The `json:"..."` tags tell Go's encoding/json package how to serialize/deserialize
// this struct to/from JSON.
//
// Tags are hydrated by the store in the order they were attached to the snippet.
// Description and Tutorial are optional; an empty string means "not set".
type Snippet struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Code        string    `json:"code"`
	Language    string    `json:"language"`
	Description string    `json:"description,omitempty"`
	Tutorial    string    `json:"tutorial,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Tags        []Tag     `json:"tags"`
}

// HasTag reports whether the snippet carries a tag with exactly this name.
func (s *Snippet) HasTag(name string) bool {
	for _, t := range s.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Tag is a label shared between snippets (many-to-many via snippet_tags).
// Color is a pointer because most tags have none and the JSON should say null.
type Tag struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color *string `json:"color"`
}

// TagCount pairs a tag with the number of snippets currently carrying it.
type TagCount struct {
	Tag
	Count int `json:"count"`
}
