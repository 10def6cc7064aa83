package sources

import (
	"context"
	"iter"
	"time"
)

// TestSource is a fixed source of two dummy sbd files, newest first.
type TestSource struct{}

func (TestSource) Name() string {
	return "test"
}

func (TestSource) Iterate(ctx context.Context) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		items := []Item{
			{Name: "123_abc.sbd", Time: time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC), Content: NewBufferedContent([]byte("123"))},
			{Name: "456_def.sbd", Time: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), Content: NewBufferedContent([]byte("456"))},
		}
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}
