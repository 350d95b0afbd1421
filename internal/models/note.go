// Package models defines the domain types shared across Ansuz components.
package models

import (
	"path"
	"strings"
	"time"
)

// Category is one of the fixed note categories. Every note belongs to
// exactly one category, derived from front matter or the vault folder the
// note lives in.
type Category string

const (
	CategoryIdeas       Category = "Ideas to Develop"
	CategoryPersonal    Category = "Personal"
	CategoryResearch    Category = "Research"
	CategoryReadingList Category = "Reading List"
	CategoryProjects    Category = "Projects"
	CategoryLearning    Category = "Learning"
	CategoryQuickNotes  Category = "Quick Notes"
)

var categoryByFolder = map[string]Category{
	"ideas":        CategoryIdeas,
	"personal":     CategoryPersonal,
	"research":     CategoryResearch,
	"reading-list": CategoryReadingList,
	"projects":     CategoryProjects,
	"learning":     CategoryLearning,
	"quick-notes":  CategoryQuickNotes,
}

var folderByCategory = func() map[Category]string {
	m := make(map[Category]string, len(categoryByFolder))
	for folder, cat := range categoryByFolder {
		m[cat] = folder
	}
	return m
}()

// Categories returns all known categories.
func Categories() []Category {
	return []Category{
		CategoryIdeas,
		CategoryPersonal,
		CategoryResearch,
		CategoryReadingList,
		CategoryProjects,
		CategoryLearning,
		CategoryQuickNotes,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := folderByCategory[c]
	return ok
}

// Folder returns the vault folder name for the category.
func (c Category) Folder() string {
	if f, ok := folderByCategory[c]; ok {
		return f
	}
	return folderByCategory[CategoryQuickNotes]
}

// CategoryFromName resolves a category by its display name, falling back to
// Quick Notes for unknown values.
func CategoryFromName(name string) Category {
	c := Category(strings.TrimSpace(name))
	if c.Valid() {
		return c
	}
	return CategoryQuickNotes
}

// CategoryFromPath derives a category from a vault-relative file path by
// matching the leading folder. Files outside known folders default to
// Quick Notes.
func CategoryFromPath(rel string) Category {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	if i := strings.IndexByte(rel, '/'); i > 0 {
		folder := rel[:i]
		if c, ok := categoryByFolder[strings.ToLower(folder)]; ok {
			return c
		}
		// Vault folders commonly carry the display name instead of the slug.
		for _, c := range Categories() {
			if strings.EqualFold(folder, string(c)) {
				return c
			}
		}
	}
	return CategoryQuickNotes
}

// NoteMetadata is a lightweight representation returned by vault listings.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
