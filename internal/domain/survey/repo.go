package survey

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ResultRepository interface {
	Create(ctx context.Context, r *Result) error
	GetByID(ctx context.Context, id uuid.UUID) (*Result, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByPatient returns results newest first.
	ListByPatient(ctx context.Context, patientID string, f Filter) ([]*Result, error)
	// LatestByType returns the newest result of each survey type.
	LatestByType(ctx context.Context, patientID string) ([]*Result, error)
}

// SummaryCache stores the generated cross-scale summary per patient.
//
// Every Invalidate bumps the patient's version. A reader takes Version
// before loading the results it summarizes and hands it back to Put, which
// refuses the write (stored == false) if an invalidation happened since.
type SummaryCache interface {
	// Version is 0 for a patient that was never cached or invalidated.
	Version(ctx context.Context, patientID string) (int64, error)
	// Get returns ErrNotFound when nothing is cached.
	Get(ctx context.Context, patientID string) (string, time.Time, error)
	Put(ctx context.Context, patientID, summary string, version int64) (at time.Time, stored bool, err error)
	Invalidate(ctx context.Context, patientID string) error
}
