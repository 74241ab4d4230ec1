// Package ingest turns a dropped file into an encoded payload that a
// submission may reference.
//
// A Pipeline tracks at most one file. Each drop starts a new generation; the
// read for a generation runs on its own goroutine and its result is published
// only if no later drop has superseded it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

type State int

const (
	StateEmpty State = iota
	StateReading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReading:
		return "reading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultMaxBytes caps how much of a single file is read into memory.
const DefaultMaxBytes int64 = 10 << 20

const (
	MsgInvalidType = "must be a valid file of the expected type"
	MsgTooMany     = "only one file may be dropped at a time"
)

// Result is the outcome of one read: exactly one of File or Err is set.
type Result struct {
	File *EncodedFile
	Err  string
}

func Ready(f EncodedFile) Result { return Result{File: &f} }
func Failed(reason string) Result {
	if reason == "" {
		reason = "could not read file"
	}
	return Result{Err: reason}
}

// Snapshot is a consistent view of the pipeline.
type Snapshot struct {
	State      State        `json:"-"`
	StateName  string       `json:"state"`
	Generation uint64       `json:"generation"`
	File       *EncodedFile `json:"file,omitempty"`
	Err        string       `json:"error,omitempty"`
}

type Pipeline struct {
	accept   Accept
	maxBytes int64
	logger   *zap.Logger

	mu     sync.Mutex
	gen    uint64
	state  State
	result Result
	done   chan struct{}
}

func NewPipeline(accept Accept, maxBytes int64, logger *zap.Logger) *Pipeline {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	done := make(chan struct{})
	close(done)
	return &Pipeline{
		accept:   accept,
		maxBytes: maxBytes,
		logger:   logger,
		state:    StateEmpty,
		done:     done,
	}
}

// OnFilesDropped discards any previous result and starts a new generation.
// Validation happens before any read; the read itself is asynchronous.
// The returned generation identifies this drop.
func (p *Pipeline) OnFilesDropped(files []File) uint64 {
	accepted := p.accept.Filter(files)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	gen := p.gen
	if p.state == StateReading {
		// The superseded read never settles; release its waiters.
		close(p.done)
	}
	p.done = make(chan struct{})

	switch {
	case len(files) > 1:
		p.settleLocked(Failed(MsgTooMany))
		return gen
	case len(accepted) == 0:
		p.settleLocked(Failed(MsgInvalidType))
		return gen
	}

	file := accepted[0]
	if file.Size() > p.maxBytes {
		p.settleLocked(Failed(fmt.Sprintf("file exceeds the maximum size of %d bytes", p.maxBytes)))
		return gen
	}

	p.state = StateReading
	p.result = Result{}
	go p.read(gen, file)
	return gen
}

func (p *Pipeline) read(gen uint64, file File) {
	result := p.readAll(file)
	if result.Err != "" {
		p.logger.Debug("file read failed", zap.String("file", file.Name()), zap.String("reason", result.Err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		p.logger.Debug("discarding stale read", zap.Uint64("generation", gen), zap.Uint64("current", p.gen))
		return
	}
	p.settleLocked(result)
}

func (p *Pipeline) readAll(file File) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Failed(fmt.Sprint(r))
		}
	}()

	rc, err := file.Open()
	if err != nil {
		return Failed(err.Error())
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, p.maxBytes+1))
	if err != nil {
		return Failed(err.Error())
	}
	if int64(len(data)) > p.maxBytes {
		return Failed(fmt.Sprintf("file exceeds the maximum size of %d bytes", p.maxBytes))
	}
	return Ready(Encode(file.Name(), data))
}

func (p *Pipeline) settleLocked(result Result) {
	p.result = result
	if result.File != nil {
		p.state = StateReady
	} else {
		p.state = StateFailed
	}
	close(p.done)
}

func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pipeline) snapshotLocked() Snapshot {
	snap := Snapshot{State: p.state, StateName: p.state.String(), Generation: p.gen}
	switch p.state {
	case StateReady:
		file := *p.result.File
		snap.File = &file
	case StateFailed:
		snap.Err = p.result.Err
	}
	return snap
}

// Wait blocks until the most recent drop has settled or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) (Snapshot, error) {
	for {
		p.mu.Lock()
		if p.state != StateReading {
			snap := p.snapshotLocked()
			p.mu.Unlock()
			return snap, nil
		}
		done := p.done
		p.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return p.Snapshot(), ctx.Err()
		}
	}
}

var ErrNotReady = errors.New("file is not ready")

// File returns the encoded file once the current generation is Ready.
func (p *Pipeline) File() (EncodedFile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateReady:
		return *p.result.File, nil
	case StateReading:
		return EncodedFile{}, fmt.Errorf("%w: still reading", ErrNotReady)
	case StateFailed:
		return EncodedFile{}, fmt.Errorf("%w: %s", ErrNotReady, p.result.Err)
	default:
		return EncodedFile{}, ErrNotReady
	}
}
