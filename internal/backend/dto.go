package backend

import (
	"strings"
	"time"
)

// conflictCheckRequest is the body of POST /companies/check-conflicts
type conflictCheckRequest struct {
	CompanyIDs         []int  `json:"company_ids"`
	TargetCollectionID string `json:"target_collection_id"`
}

// Conflict is one entry of the conflicts array
type Conflict struct {
	CompanyID    int    `json:"company_id"`
	ConflictType string `json:"conflict_type"` // "in_liked", "in_ignored"
	Message      string `json:"message"`
}

// ConflictCheckResponse groups the checked ids
type ConflictCheckResponse struct {
	Conflicts    []Conflict `json:"conflicts"`
	Duplicates   []int      `json:"duplicates"`
	SafeToAdd    []int      `json:"safe_to_add"`
	TotalChecked int        `json:"total_checked"`
}

// companyIDsRequest is the body of check-statuses and bulk-remove
type companyIDsRequest struct {
	CompanyIDs []int `json:"company_ids"`
}

// bulkAddRequest is the body of POST /collections/{id}/companies/bulk-add
type bulkAddRequest struct {
	CompanyIDs         []int   `json:"company_ids"`
	SourceCollectionID *string `json:"source_collection_id,omitempty"`
}

// StatusCheckResponse summarizes liked/ignored status of a set of companies
type StatusCheckResponse struct {
	LikedCount    int   `json:"liked_count"`
	IgnoredCount  int   `json:"ignored_count"`
	NoStatusCount int   `json:"no_status_count"`
	LikedIDs      []int `json:"liked_ids"`
	IgnoredIDs    []int `json:"ignored_ids"`
}

// BulkOperationResponse is returned when a bulk job is queued
type BulkOperationResponse struct {
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	Total       int    `json:"total"`
	Processed   int    `json:"processed"`
}

// BulkOperationStatus is the server record of a bulk job
type BulkOperationStatus struct {
	OperationID string   `json:"operation_id"`
	Status      string   `json:"status"`
	Total       int      `json:"total"`
	Processed   int      `json:"processed"`
	Errors      []string `json:"errors"`
	StartedAt   Time     `json:"started_at"`
	CompletedAt *Time    `json:"completed_at"`
}

// SearchIDsResponse is returned by GET /search/ids
type SearchIDsResponse struct {
	CompanyIDs []int `json:"company_ids"`
	Total      int   `json:"total"`
}

// CollectionMetadata is one entry of GET /collections
type CollectionMetadata struct {
	ID              string `json:"id"`
	CollectionName  string `json:"collection_name"`
	CollectionCount int    `json:"collection_count"`
}

// Company is a company row as the backend renders it
type Company struct {
	ID            int     `json:"id"`
	CompanyName   string  `json:"company_name"`
	Liked         bool    `json:"liked"`
	Ignored       bool    `json:"ignored"`
	Industry      *string `json:"industry,omitempty"`
	CompanyStage  *string `json:"company_stage,omitempty"`
	Location      *string `json:"location,omitempty"`
	FoundedYear   *int    `json:"founded_year,omitempty"`
	EmployeeCount *int    `json:"employee_count,omitempty"`
	TotalFunding  *int64  `json:"total_funding,omitempty"`
}

// CollectionOutput is returned by GET /collections/{id}
type CollectionOutput struct {
	CollectionMetadata
	Companies []Company `json:"companies"`
	Total     int       `json:"total"`
}

// SearchResponse is returned by GET /search
type SearchResponse struct {
	Companies []Company `json:"companies"`
	Total     int       `json:"total"`
}

// CollectionRef is a collection as listed in a membership response
type CollectionRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CompanyCollectionStatus is returned by GET /companies/{id}/collections
type CompanyCollectionStatus struct {
	CompanyID   int             `json:"company_id"`
	Collections []CollectionRef `json:"collections"`
	IsLiked     bool            `json:"is_liked"`
	IsIgnored   bool            `json:"is_ignored"`
}

// errorResponse is the backend's error body
type errorResponse struct {
	Detail string `json:"detail"`
}

// Time accepts the backend's timestamps, which may omit the zone
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON parses RFC 3339 or zone-less ISO 8601 (read as UTC)
func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var err error
	for _, layout := range timeLayouts {
		var parsed time.Time
		if parsed, err = time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return err
}
