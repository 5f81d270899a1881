package trace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"firestige.xyz/frr/internal/link"
	"firestige.xyz/frr/internal/sim"
)

// Recorder owns the trace files of one run, all placed in one directory.
type Recorder struct {
	dir    string
	sched  *sim.Scheduler
	files  []*os.File
	pcaps  []*Pcap
	queues []*QueueTrace
}

// NewRecorder creates dir if needed.
func NewRecorder(dir string, sched *sim.Scheduler) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	return &Recorder{dir: dir, sched: sched}, nil
}

// Dir returns the output directory.
func (r *Recorder) Dir() string { return r.dir }

// create opens a file in the output directory. Path separators in device
// names are flattened so every file lands directly in dir.
func (r *Recorder) create(name string) (*os.File, error) {
	name = strings.ReplaceAll(name, "/", "-")
	f, err := os.Create(filepath.Join(r.dir, name))
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	r.files = append(r.files, f)
	return f, nil
}

// CaptureDevice writes every frame of d to "<device>.pcap", with "/" in the
// device name replaced by "-".
func (r *Recorder) CaptureDevice(d *link.Device) error {
	f, err := r.create(d.Name() + ".pcap")
	if err != nil {
		return err
	}
	p, err := NewPcap(f, r.sched)
	if err != nil {
		return fmt.Errorf("trace: %s: %w", f.Name(), err)
	}
	p.Attach(d)
	r.pcaps = append(r.pcaps, p)
	return nil
}

// TraceQueue writes the occupancy of d's queue to "<device>-queue.dat".
func (r *Recorder) TraceQueue(d *link.Device) error {
	f, err := r.create(d.Name() + "-queue.dat")
	if err != nil {
		return err
	}
	qt := NewQueueTrace(f, r.sched)
	d.Queue().AddObserver(qt)
	r.queues = append(r.queues, qt)
	return nil
}

// Close flushes and closes every file, returning all errors joined.
func (r *Recorder) Close() error {
	var errs []error
	for _, q := range r.queues {
		errs = append(errs, q.Flush())
	}
	for _, p := range r.pcaps {
		errs = append(errs, p.Err())
	}
	for _, f := range r.files {
		errs = append(errs, f.Close())
	}
	slog.Debug("trace files closed", "dir", r.dir, "files", len(r.files))
	return errors.Join(errs...)
}
