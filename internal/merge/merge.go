package merge

import (
	"context"
	"fmt"

	"fritzwatch/internal/model"
)

// Store is the slice of the persistence layer the merge needs. It keeps
// rows exactly as told; deciding what is new is this package's job.
type Store interface {
	// SelectLatest returns the most recent row by timestamp, or nil if
	// the store is empty.
	SelectLatest(ctx context.Context) (*model.Record, error)
	// Append inserts records in the given order, without reordering or
	// deduplicating.
	Append(ctx context.Context, records []model.Record) error
	// Replace updates the single row sharing old's identity key to
	// new's full field set.
	Replace(ctx context.Context, old, new model.Record) error
}

// UnsortedBatchError reports a batch violating the old-to-new ordering
// contract. Index is the first position whose timestamp goes backwards.
type UnsortedBatchError struct {
	Index int
}

func (e *UnsortedBatchError) Error() string {
	return fmt.Sprintf("batch not sorted old to new: timestamp at index %d precedes its predecessor", e.Index)
}

// OverlapNotFoundError reports a batch that overlaps persisted history
// by time but contains no record matching the latest stored row. This
// means the device log advanced past what any poll captured; the gap is
// surfaced rather than silently patched.
type OverlapNotFoundError struct {
	Latest model.Record
}

func (e *OverlapNotFoundError) Error() string {
	return fmt.Sprintf("no batch record matches latest stored entry (message id %d, category %d, first seen %d)",
		e.Latest.MessageID, e.Latest.CategoryID, e.Latest.EarliestUnixMilli())
}

// Merge incorporates one freshly fetched batch into persisted history
// exactly once. The batch must be non-empty and sorted old to new.
//
// It returns the records that actually changed the store on this call:
// the replaced pivot, if its timestamp or repetition advanced, followed
// by every appended record, in batch order. Re-running Merge with the
// same batch is safe; the second run incorporates nothing.
func Merge(ctx context.Context, store Store, batch []model.Record) ([]model.Record, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	for i := 1; i < len(batch); i++ {
		if batch[i].Timestamp.Before(batch[i-1].Timestamp) {
			return nil, &UnsortedBatchError{Index: i}
		}
	}

	latest, err := store.SelectLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("select latest: %w", err)
	}

	switch {
	case latest == nil:
		// Empty store: everything is new.
		if err := store.Append(ctx, batch); err != nil {
			return nil, fmt.Errorf("append batch: %w", err)
		}
		return batch, nil

	case oldestEarliest(batch) > latest.LatestUnixMilli():
		// The batch starts after everything we have seen, so nothing in
		// it can overlap persisted history.
		if err := store.Append(ctx, batch); err != nil {
			return nil, fmt.Errorf("append batch: %w", err)
		}
		return batch, nil

	case batch[len(batch)-1].LatestUnixMilli() < latest.LatestUnixMilli():
		// The whole batch predates current history; it is stale.
		return nil, nil
	}

	// The batch overlaps history. The latest stored entry must reappear
	// in the batch; it marks the boundary between seen and new.
	pivot := -1
	for i, record := range batch {
		if record.SameEntry(*latest) {
			pivot = i
			break
		}
	}
	if pivot < 0 {
		return nil, &OverlapNotFoundError{Latest: *latest}
	}

	incorporated := make([]model.Record, 0, len(batch)-pivot)
	if !batch[pivot].Equal(*latest) {
		// Same entry, advanced repetition state: update in place so the
		// store keeps exactly one row per logical entry.
		if err := store.Replace(ctx, *latest, batch[pivot]); err != nil {
			return nil, fmt.Errorf("replace latest: %w", err)
		}
		incorporated = append(incorporated, batch[pivot])
	}

	// Everything after the pivot is brand new; everything at or before
	// it (other than the pivot) was already persisted by earlier polls.
	if tail := batch[pivot+1:]; len(tail) > 0 {
		if err := store.Append(ctx, tail); err != nil {
			return nil, fmt.Errorf("append tail: %w", err)
		}
		incorporated = append(incorporated, tail...)
	}
	return incorporated, nil
}

// oldestEarliest is the earliest point in time the batch reaches back
// to, repetition first-seen times included.
func oldestEarliest(batch []model.Record) int64 {
	min := batch[0].EarliestUnixMilli()
	for _, record := range batch[1:] {
		if ts := record.EarliestUnixMilli(); ts < min {
			min = ts
		}
	}
	return min
}
