package page

import "time"

// Annotation is a reviewer's note about a change between two versions.
type Annotation struct {
	Author       string   `json:"author,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Significance float64  `json:"significance,omitempty"`
	Labels       []string `json:"labels,omitempty"`
}

// AnnotationResult is what a backend returns after storing an annotation.
// Count is the number of annotations recorded for the same change so far.
type AnnotationResult struct {
	ID         string     `json:"id"`
	PageUUID   string     `json:"page_uuid"`
	FromUUID   string     `json:"from_uuid"`
	ToUUID     string     `json:"to_uuid"`
	Annotation Annotation `json:"annotation"`
	CreatedAt  time.Time  `json:"created_at"`
	Count      int        `json:"count"`
}
