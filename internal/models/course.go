package models

import "github.com/google/uuid"

// Course is the part of a course record this service reads.
type Course struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	TeacherID    uuid.UUID `json:"teacher_id"`
}

// CourseSummary is embedded in live class responses.
type CourseSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// Summary returns the embeddable view of c.
func (c *Course) Summary() *CourseSummary {
	return &CourseSummary{ID: c.ID, Title: c.Title, ThumbnailURL: c.ThumbnailURL}
}
