package notes

import (
	"errors"
	"time"
)

// DefaultTitle is the title given to freshly created notes.
const DefaultTitle = "Untitled Note"

// ErrUnknownNote is returned by operations that validate note ids strictly.
var ErrUnknownNote = errors.New("unknown note")

// Note is a titled rich-text document. Content is the editor's serialized
// document and is never interpreted here.
type Note struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	LastModified time.Time `json:"lastModified"`
}

// UpdateParams contains the fields to merge into a note.
// Both fields are optional (pointer to distinguish empty string from omitted).
type UpdateParams struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// IsEmpty reports whether no field is supplied.
func (p UpdateParams) IsEmpty() bool {
	return p.Title == nil && p.Content == nil
}

// TitleUpdate is shorthand for an update that only sets the title.
func TitleUpdate(title string) UpdateParams {
	return UpdateParams{Title: &title}
}

// ContentUpdate is shorthand for an update that only sets the content.
func ContentUpdate(content string) UpdateParams {
	return UpdateParams{Content: &content}
}
