// Package model defines the domain entities and status state machines shared
// across the pipeline stages.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// TargetStatus tracks a target through the enrichment pipeline.
type TargetStatus string

const (
	TargetStatusPending  TargetStatus = "pending"
	TargetStatusEnriched TargetStatus = "enriched"
	TargetStatusComplete TargetStatus = "complete"
	TargetStatusFailed   TargetStatus = "failed"
)

// targetTransitions lists the legal forward moves. Re-asserting the current
// status is always legal so idempotent writers never error.
var targetTransitions = map[TargetStatus][]TargetStatus{
	TargetStatusPending:  {TargetStatusEnriched, TargetStatusFailed},
	TargetStatusEnriched: {TargetStatusComplete, TargetStatusFailed},
	TargetStatusComplete: {},
	TargetStatusFailed:   {},
}

// ValidTargetTransition reports whether moving from one status to another is
// allowed.
func ValidTargetTransition(from, to TargetStatus) bool {
	if from == to {
		return true
	}
	for _, next := range targetTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTargetTransition returns an error describing an illegal move.
func CheckTargetTransition(from, to TargetStatus) error {
	if !ValidTargetTransition(from, to) {
		return eris.Errorf("illegal target transition: %s -> %s", from, to)
	}
	return nil
}

// SourceStatus tracks a source document through scraping.
type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusMined      SourceStatus = "mined"
	SourceStatusFailed     SourceStatus = "failed"
)

// Settled reports whether the source has reached a terminal status.
func (s SourceStatus) Settled() bool {
	return s == SourceStatusMined || s == SourceStatusFailed
}

// PretextStatus tracks a generated pretext through review.
type PretextStatus string

const (
	PretextStatusDraft    PretextStatus = "draft"
	PretextStatusApproved PretextStatus = "approved"
	PretextStatusRejected PretextStatus = "rejected"
)

// ValidPretextStatus reports whether the status is one of the known values.
func ValidPretextStatus(s PretextStatus) bool {
	switch s {
	case PretextStatusDraft, PretextStatusApproved, PretextStatusRejected:
		return true
	}
	return false
}

// Domain is an organization's email domain under investigation.
type Domain struct {
	Name        string  `json:"name"`
	MX          *string `json:"mx"`
	SPF         *string `json:"spf"`
	DMARC       *string `json:"dmarc"`
	EmailFormat *string `json:"emailFormat"`
}

// DNSRecords carries the resolved mail-posture records for a domain. A nil
// field means the lookup failed or returned nothing.
type DNSRecords struct {
	MX    *string
	SPF   *string
	DMARC *string
}

// Target is an individual person tied to a domain.
type Target struct {
	Email       string       `json:"email"`
	Name        string       `json:"name"`
	Profile     *string      `json:"profile"`
	DomainName  string       `json:"domainName"`
	TenureStart *time.Time   `json:"tenureStart"`
	Status      TargetStatus `json:"status"`
}

// SourceData is a discovered document URL and, once scraped, its payload.
type SourceData struct {
	ID              int64        `json:"id"`
	URL             string       `json:"url"`
	SourceDomain    *string      `json:"sourceDomain"`
	DiscoveryMethod string       `json:"discoveryMethod"`
	Data            *string      `json:"data"`
	Status          SourceStatus `json:"status"`
	StatusMessage   *string      `json:"statusMessage"`
	LastChecked     time.Time    `json:"lastChecked"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// ScrapedPayload is the JSON document stored in SourceData.Data after a
// successful fetch.
type ScrapedPayload struct {
	StatusCode  int       `json:"statusCode"`
	ContentType string    `json:"contentType"`
	Content     string    `json:"content"`
	ScrapedAt   time.Time `json:"scrapedAt"`
}

// Prompt is a reusable pretext template.
type Prompt struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Template     string `json:"template"`
	SystemPrompt string `json:"systemPrompt"`
	Dos          string `json:"dos"`
	Donts        string `json:"donts"`
}

// Pretext is a generated message draft awaiting review.
type Pretext struct {
	ID          int64         `json:"id"`
	TargetEmail string        `json:"targetEmail"`
	PromptID    int64         `json:"promptId"`
	PromptText  string        `json:"promptText"`
	Subject     string        `json:"subject"`
	Body        string        `json:"body"`
	Link        string        `json:"link"`
	Status      PretextStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
}
