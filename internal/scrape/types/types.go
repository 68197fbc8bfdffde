package types

import (
	"context"
	"fmt"
	"strings"

	"djangojobs/internal/domain"
	"djangojobs/internal/fetch"
)

// Getter fetches detail pages. *fetch.Fetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (fetch.Page, error)
}

// Source turns one listing endpoint into canonical records.
type Source interface {
	Name() string
	Endpoint() string
	Parse(ctx context.Context, page fetch.Page, get Getter) (Batch, error)
}

// Defect is a single listing that could not be turned into a record.
type Defect struct {
	URL    string
	Reason string
}

// Batch is what one source produced in one run.
type Batch struct {
	Source  string
	Records []domain.JobRecord
	Skipped []Defect
	// Total listings considered (records + skipped).
	Total int
}

func (b *Batch) Skip(url, format string, args ...any) {
	b.Skipped = append(b.Skipped, Defect{URL: url, Reason: fmt.Sprintf(format, args...)})
}

// ParseError means the upstream structure is no longer recognisable.
type ParseError struct {
	Source string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Source, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

type ParseMode int

const (
	ModeHTML ParseMode = iota
	ModeJSON
	ModeXML
)

func (m ParseMode) String() string {
	switch m {
	case ModeJSON:
		return "json"
	case ModeXML:
		return "xml"
	default:
		return "html"
	}
}

// Mode picks the parser mode from a response content type. Unknown or
// missing types are treated as HTML.
func Mode(contentType string) ParseMode {
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	switch {
	case ct == "application/json", strings.HasSuffix(ct, "+json"):
		return ModeJSON
	case ct == "application/xml", ct == "text/xml", strings.HasSuffix(ct, "+xml"):
		return ModeXML
	default:
		return ModeHTML
	}
}
