package api

import (
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/organizer"
	"github.com/starford/ansuz/internal/registry"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nWorld" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// CaptureRequest is the request body for capturing free-form text.
type CaptureRequest struct {
	Text string `json:"text" example:"idea worth keeping" validate:"required"`
}

// RelatedRequest is the request body for a related-notes query.
type RelatedRequest struct {
	Title      string   `json:"title" example:"MQTT basics"`
	Text       string   `json:"text,omitempty"`
	Keywords   []string `json:"keywords,omitempty" example:"mqtt,iot"`
	ZettelOnly bool     `json:"zettel_only,omitempty"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// CaptureResult summarizes what the organizer did with a capture.
type CaptureResult = organizer.Result

// Project is one registered project hub.
type Project = registry.ProjectHub

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// RelatedNote is one scored related-note hit.
type RelatedNote struct {
	Path      string   `json:"path" example:"zettel/20260101-001.md" validate:"required"`
	Title     string   `json:"title" example:"MQTT basics"`
	Relevance float64  `json:"relevance" example:"0.85" validate:"required"`
	Matched   []string `json:"matched,omitempty" example:"mqtt"`
	Reason    string   `json:"reason,omitempty"`
	Type      string   `json:"type,omitempty" example:"extends"`
}

// RelatedResponse wraps related-note results.
type RelatedResponse struct {
	Results []RelatedNote `json:"results" validate:"required"`
}
