// SPDX-License-Identifier: Apache-2.0

// Package archive exports event ranges as snappy framed NDJSON objects.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/trackertime"
	"github.com/golang/snappy"
)

var ErrUploadFailed = errors.New("archive upload failed")

// ObjectStore receives finished archive files.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, objectPath string) error
}

// EventSource is satisfied by *tracking.Tracker.
type EventSource interface {
	EventsBetween(ctx context.Context, from, until trackertime.Timestamp, users []domain.UserID, types []int) iter.Seq2[domain.Event, error]
}

type Request struct {
	From  trackertime.Timestamp
	Until trackertime.Timestamp
	Users []domain.UserID
	Types []int
	// Key overrides the default object key.
	Key string
}

type Result struct {
	Key    string `json:"key"`
	Events int    `json:"events"`
	Bytes  int64  `json:"bytes"`
}

type Exporter struct {
	source EventSource
	store  ObjectStore
	logger *slog.Logger
}

func NewExporter(source EventSource, store ObjectStore, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{source: source, store: store, logger: logger}
}

// ObjectKey is the default key of an archive covering [from, until].
func ObjectKey(from, until trackertime.Timestamp) string {
	return fmt.Sprintf("events/%s-%s.ndjson.sz", from, until)
}

// Export writes the matching events to a temporary file and uploads it.
// Nothing is uploaded when the query fails part way.
func (e *Exporter) Export(ctx context.Context, req Request) (Result, error) {
	key := req.Key
	if key == "" {
		key = ObjectKey(req.From, req.Until)
	}

	tmp, err := os.CreateTemp("", "tracker-archive-*.sz")
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	n, err := Write(tmp, e.source.EventsBetween(ctx, req.From, req.Until, req.Users, req.Types))
	if err != nil {
		e.logger.Error("archive write failed", "key", key, "written", n, "error", err)
		return Result{}, err
	}

	info, err := tmp.Stat()
	if err != nil {
		return Result{}, err
	}
	if err := tmp.Close(); err != nil {
		return Result{}, err
	}

	if err := e.store.Upload(ctx, tmp.Name(), key); err != nil {
		e.logger.Error("archive upload failed", "key", key, "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	e.logger.Info("archive exported", "key", key, "events", n, "bytes", info.Size())
	return Result{Key: key, Events: n, Bytes: info.Size()}, nil
}

// Write streams events as snappy framed NDJSON and returns how many were
// written.
func Write(w io.Writer, events iter.Seq2[domain.Event, error]) (int, error) {
	sw := snappy.NewBufferedWriter(w)
	enc := json.NewEncoder(sw)

	n := 0
	for ev, err := range events {
		if err != nil {
			_ = sw.Close()
			return n, err
		}
		if err := enc.Encode(ev); err != nil {
			_ = sw.Close()
			return n, err
		}
		n++
	}
	return n, sw.Close()
}

// Read yields the events of an archive written by Write.
func Read(r io.Reader) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		scanner := bufio.NewScanner(snappy.NewReader(r))
		scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

		for scanner.Scan() {
			var ev domain.Event
			if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
				yield(domain.Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(domain.Event{}, err)
		}
	}
}
