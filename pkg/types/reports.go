package types

import "time"

// ParseWarning is a recoverable problem found while parsing a specification.
// Warnings never abort an ingest; they ride along in the report.
type ParseWarning struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Offset  int64  `json:"offset,omitempty"`
}

// IngestReport summarizes one completed ingest.
type IngestReport struct {
	APIID      int64          `json:"api_id"`
	Name       string         `json:"name"`
	Title      string         `json:"title"`
	Version    string         `json:"version"`
	Digest     string         `json:"digest"`
	Endpoints  int            `json:"endpoints"`
	Schemas    int            `json:"schemas"`
	Categories int            `json:"categories"`
	Warnings   []ParseWarning `json:"warnings,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Replaced   bool           `json:"replaced,omitempty"`
}

// StatusReport describes the current contents of a store directory.
type StatusReport struct {
	Dir           string    `json:"dir"`
	Name          string    `json:"name"`
	Title         string    `json:"title"`
	Version       string    `json:"version"`
	Digest        string    `json:"digest"`
	SchemaVersion int       `json:"schema_version"`
	Endpoints     int       `json:"endpoints"`
	Schemas       int       `json:"schemas"`
	Categories    int       `json:"categories"`
	IngestedAt    time.Time `json:"ingested_at"`
}
