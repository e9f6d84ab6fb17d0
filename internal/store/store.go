// Package store persists assembled reports by report id, external to the
// assembly core. A memory implementation backs tests and single-node runs;
// the Postgres implementation is for real deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/insightlab/reportstream/internal/assembly"
	"github.com/insightlab/reportstream/internal/report"
)

// ErrNotFound is returned by Get and Delete for an unknown report id.
var ErrNotFound = errors.New("report not found")

// Record is one stored report: the raw assembled report plus its finalized
// view, so re-serving does not re-run chart resolution.
type Record struct {
	ReportID  string               `json:"report_id"`
	SessionID string               `json:"session_id,omitempty"`
	Title     string               `json:"title"`
	CreatedAt time.Time            `json:"created_at"`
	Report    *report.Report       `json:"report"`
	View      *assembly.ReportView `json:"view,omitempty"`
}

// Store is the report persistence interface.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, reportID string) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	Delete(ctx context.Context, reportID string) error

	// DeleteOlderThan removes reports created before the cutoff and
	// returns how many were removed. The retention sweep calls this.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
