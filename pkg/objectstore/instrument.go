package objectstore

import (
	"context"
	"io"
	"time"
)

// RecordFunc receives the outcome of one store call
type RecordFunc func(ctx context.Context, operation string, duration time.Duration, err error)

type instrumented struct {
	Store
	record RecordFunc
}

// Instrument reports every Put and Delete on s to record
func Instrument(s Store, record RecordFunc) Store {
	if record == nil {
		return s
	}
	return &instrumented{Store: s, record: record}
}

func (i *instrumented) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	start := time.Now()
	url, err := i.Store.Put(ctx, key, body, contentType)
	i.record(ctx, "put", time.Since(start), err)
	return url, err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.Store.Delete(ctx, key)
	i.record(ctx, "delete", time.Since(start), err)
	return err
}
