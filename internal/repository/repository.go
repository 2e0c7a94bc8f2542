package repository

import (
	"context"
	"errors"
	"time"

	"github.com/JacobMintzer/Allstar-API/internal/model"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateAccount     = errors.New("account already exists")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// RecordUpdate carries the fields of a partial update; nil means the field
// was not supplied.
type RecordUpdate struct {
	FinishTime *time.Time
	TotalTime  *int64
	Notes      *string
}

type Accounts interface {
	// Create stores a new account, failing with ErrDuplicateAccount if the
	// email is already registered.
	Create(ctx context.Context, account model.Account) error
	Get(ctx context.Context, email string) (model.Account, error)
	// VerifyCredentials fails with ErrAuthenticationFailed both for an
	// unknown email and for a digest mismatch.
	VerifyCredentials(ctx context.Context, email, passwordHash string) (model.Account, error)
	// List returns every account ordered by email.
	List(ctx context.Context) ([]model.Account, error)
}

type Records interface {
	// Create stores a new record and returns its generated id. StartTime
	// must already be derived by the caller (see NewTimeRecord).
	Create(ctx context.Context, record model.TimeRecord) (string, error)
	Get(ctx context.Context, id string) (model.TimeRecord, error)
	// Update overwrites the supplied fields and then recomputes the derived
	// start time from the record's current finish and total, whether or not
	// either was part of this update.
	Update(ctx context.Context, id string, update RecordUpdate) (string, error)
	// AppendNote concatenates " "+note onto the record's notes.
	AppendNote(ctx context.Context, id, note string) (string, error)
	// Delete reports whether a record was removed. The error is for
	// diagnostics only; callers treat any failure as false.
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]model.TimeRecord, error)
	// SearchNotes matches records whose notes contain term as a
	// case-insensitive substring.
	SearchNotes(ctx context.Context, term string) ([]model.TimeRecord, error)
	// OverlapRange returns records with start_time < end and
	// finish_time > start. Records touching a boundary are excluded.
	OverlapRange(ctx context.Context, start, end time.Time) ([]model.TimeRecord, error)
	SumSecondsByOwner(ctx context.Context, email string) (int64, error)
}

// NewTimeRecord builds a record for creation. The derived start time is
// only computed when both finish and total were supplied.
func NewTimeRecord(owner string, finish *time.Time, total *int64, notes string) model.TimeRecord {
	record := model.TimeRecord{OwnerEmail: owner, Notes: notes}
	if finish != nil {
		record.FinishTime = finish
	}
	if total != nil {
		record.TotalTime = *total
	}
	if finish != nil && total != nil {
		recomputeStart(&record)
	}
	return record
}

// recomputeStart enforces the invariant startTime == finishTime - totalTime.
// Without a finish time there is nothing to derive.
func recomputeStart(record *model.TimeRecord) {
	if record.FinishTime == nil {
		record.StartTime = nil
		return
	}
	start := record.FinishTime.Add(-time.Duration(record.TotalTime) * time.Second)
	record.StartTime = &start
}

func applyUpdate(record *model.TimeRecord, update RecordUpdate) {
	if update.FinishTime != nil {
		record.FinishTime = update.FinishTime
	}
	if update.TotalTime != nil {
		record.TotalTime = *update.TotalTime
	}
	if update.Notes != nil {
		record.Notes = *update.Notes
	}
	recomputeStart(record)
}
