package sources

import (
	"context"
	"errors"
	"iter"
	"time"
)

// ErrNotImplemented is yielded by a Source that never overrode Iterate.
var ErrNotImplemented = errors.New("sources: Iterate not implemented")

// Item is one file produced by a Source: the remote file name, the time the
// backend reports for it, and a handle to its content.
type Item struct {
	Name    string
	Time    time.Time
	Content Content
}

// Source defines the interface that all raw float data sources must implement
type Source interface {
	// Name returns the unique identifier for this source
	Name() string

	// Iterate walks the source from newest to oldest. Iteration is lazy:
	// breaking out of the range loop stops all further remote calls. A
	// remote failure is yielded once with a zero Item and ends iteration.
	// Each call starts again from the first page.
	Iterate(ctx context.Context) iter.Seq2[Item, error]
}

// Unimplemented can be embedded by a Source under construction. Its Iterate
// yields ErrNotImplemented, which indicates a programming error rather than a
// runtime fault.
type Unimplemented struct{}

func (Unimplemented) Name() string {
	return "unimplemented"
}

func (Unimplemented) Iterate(ctx context.Context) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		yield(Item{}, ErrNotImplemented)
	}
}

// Collect drains up to limit items from src. A limit of zero collects
// everything the source produces.
func Collect(ctx context.Context, src Source, limit int) ([]Item, error) {
	var items []Item
	for item, err := range src.Iterate(ctx) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}
