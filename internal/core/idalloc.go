package core

// idalloc.go assigns human-readable patient identifiers.
//
// The count-based allocator derives each number from the live patient
// count read at allocation time. Two imports running at once can compute
// the same number; the loser sees a unique violation on insert, which is
// reported as an ordinary row failure, and the next row reads a count that
// already includes the winner's insert.
// Deployments that need cross-process safety select the Redis allocator
// (see internal/storage), which hands out numbers with INCR.

import (
	"context"
	"fmt"
	"time"
)

// PatientIDPrefix starts every generated patient identifier.
const PatientIDPrefix = "TB"

// FormatPatientID renders TB-<year>-<sequence zero-padded to 6 digits>.
func FormatPatientID(year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", PatientIDPrefix, year, seq)
}

// IDAllocator opens a per-batch allocation session.
type IDAllocator interface {
	Begin(ctx context.Context) (BatchAllocator, error)
}

// BatchAllocator yields identifiers for one batch. successes is the number
// of rows persisted so far in the batch.
type BatchAllocator interface {
	Next(ctx context.Context, successes int) (string, error)
}

// PatientCounter reports how many patients exist.
type PatientCounter interface {
	CountPatients(ctx context.Context, filter PatientFilter) (int64, error)
}

// CountAllocator numbers patients from the total patient count, active and
// inactive. Deletes only deactivate, so the count never goes down.
type CountAllocator struct {
	counter PatientCounter
	now     func() time.Time
}

// NewCountAllocator creates a CountAllocator. A nil clock uses time.Now.
func NewCountAllocator(counter PatientCounter, now func() time.Time) *CountAllocator {
	if now == nil {
		now = time.Now
	}
	return &CountAllocator{counter: counter, now: now}
}

// Begin reads the patient count at the start of the batch.
func (a *CountAllocator) Begin(ctx context.Context) (BatchAllocator, error) {
	n, err := a.count(ctx)
	if err != nil {
		return nil, err
	}
	return &countBatch{alloc: a, base: n}, nil
}

func (a *CountAllocator) count(ctx context.Context) (int64, error) {
	n, err := a.counter.CountPatients(ctx, PatientFilter{IncludeInactive: true})
	if err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

type countBatch struct {
	alloc *CountAllocator
	base  int64
}

// Next re-reads the count for every row. The live count already includes
// this batch's inserts, so it matches base+successes unless another writer
// got in between, in which case the higher of the two wins.
func (b *countBatch) Next(ctx context.Context, successes int) (string, error) {
	n, err := b.alloc.count(ctx)
	if err != nil {
		return "", err
	}
	seq := max(n, b.base+int64(successes)) + 1
	return FormatPatientID(b.alloc.now().Year(), seq), nil
}
