// Package queue is the node's store-and-forward buffer: an append-only file
// of JSON lines replayed when the collector is reachable again.
package queue

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the queue file inside the queue directory.
const FileName = "data.txt"

// ErrUnavailable is returned when durable storage could not be prepared.
var ErrUnavailable = errors.New("queue storage unavailable")

// Queue appends serialized records to a line-delimited file.
type Queue struct {
	dir   string
	path  string
	ready bool
	log   *slog.Logger
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Attempted    int
	Delivered    int
	Discarded    int
	AllSucceeded bool
}

// Open prepares dir for queueing. When the directory cannot be created or
// written, Open returns a non-ready Queue together with the error so callers
// can keep running in forced-upload mode.
func Open(dir string, log *slog.Logger) (*Queue, error) {
	if log == nil {
		log = slog.Default()
	}
	q := &Queue{dir: dir, path: filepath.Join(dir, FileName), log: log}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return q, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return q, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	q.ready = true
	return q, nil
}

// Ready reports whether durable storage is usable.
func (q *Queue) Ready() bool { return q != nil && q.ready }

// Path returns the queue file path.
func (q *Queue) Path() string { return q.path }

// Enqueue appends record as one line and syncs it to disk.
func (q *Queue) Enqueue(record []byte) error {
	if !q.Ready() {
		if q != nil {
			q.log.Error("enqueue skipped", "error", ErrUnavailable)
		}
		return ErrUnavailable
	}
	line := stripNewlines(record)
	if len(line) == 0 {
		return nil
	}

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		q.log.Error("open queue file", "path", q.path, "error", err)
		return fmt.Errorf("open queue: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 0, len(line)+2)
	if torn, err := tornTail(q.path); err == nil && torn {
		buf = append(buf, '\n')
	}
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if _, err := f.Write(buf); err != nil {
		q.log.Error("append to queue", "path", q.path, "error", err)
		return fmt.Errorf("append queue: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync queue: %w", err)
	}
	q.log.Debug("record queued", "bytes", len(line))
	return nil
}

// Drain offers every queued record to deliver, in order, without stopping at
// failures. The file is removed only when every delivery succeeded.
func (q *Queue) Drain(deliver func([]byte) bool) (DrainResult, error) {
	res := DrainResult{AllSucceeded: true}
	if !q.Ready() {
		return res, nil
	}
	f, err := os.Open(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		res.AllSucceeded = false
		return res, fmt.Errorf("open queue: %w", err)
	}

	r := bufio.NewReader(f)
	for {
		line, rerr := r.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) > 0 {
			if !json.Valid(line) {
				res.Discarded++
				q.log.Warn("discarding torn queue line", "bytes", len(line))
			} else {
				res.Attempted++
				if deliver(line) {
					res.Delivered++
				} else {
					res.AllSucceeded = false
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			res.AllSucceeded = false
			return res, fmt.Errorf("read queue: %w", rerr)
		}
	}
	f.Close()

	if !res.AllSucceeded {
		q.log.Info("queue kept for retry", "attempted", res.Attempted, "delivered", res.Delivered)
		return res, nil
	}
	if err := os.Remove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return res, fmt.Errorf("clear queue: %w", err)
	}
	q.log.Info("queue drained", "delivered", res.Delivered, "discarded", res.Discarded)
	return res, nil
}

// Depth counts the non-blank lines currently queued.
func (q *Queue) Depth() (int, error) {
	if !q.Ready() {
		return 0, ErrUnavailable
	}
	f, err := os.Open(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}

func stripNewlines(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c != '\n' && c != '\r' {
			out = append(out, c)
		}
	}
	return out
}

// tornTail reports whether a non-empty file does not end in a newline.
func tornTail(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || st.Size() == 0 {
		return false, err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, st.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}
