// Package models holds shared data structures for vault files.
package models

import "time"

// NoteMetadata describes one vault file as seen by the storage layer.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
