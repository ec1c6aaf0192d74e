// Package state holds the process-wide restream configuration as two
// observable cells and the mutators that keep it consistent.
//
// The CRUD shape — exclusive lock for writes, a defensive clone on every
// read, a closed flag checked up front — mirrors the in-memory store
// pattern used elsewhere in this codebase for ephemeral records; here the
// same shape backs a durable, journaled document instead.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/restreamctl/restreamer/internal/id"
	"github.com/restreamctl/restreamer/internal/model"
	"github.com/restreamctl/restreamer/internal/observable"
)

// ErrClosed is returned by mutators called after Close.
var ErrClosed = errors.New("state: store is closed")

// Store is the singleton control-plane state: the operator password hash
// and the ordered restream list, each its own observable cell, backed by a
// single on-disk journal.
type Store struct {
	log  *slog.Logger
	path string

	closed atomic.Bool

	passwordHash *observable.Cell[*string]
	restreams    *observable.Cell[[]model.Restream]
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneRestreams(rs []model.Restream) []model.Restream {
	out := make([]model.Restream, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

func restreamsEqual(a, b []model.Restream) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Open opens or creates the journal file at path. An absent or empty file
// yields a store with default (empty) state; otherwise the file is
// deserialized as a Root document. Two persister subscriptions are attached
// — one per cell — that each rewrite the whole document on every change.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	root, err := loadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("state: opening %s: %w", path, err)
	}

	s := &Store{
		log:          log,
		path:         path,
		passwordHash: observable.NewCell(root.PasswordHash, stringPtrEqual, cloneStringPtr, log),
		restreams:    observable.NewCell(root.Restreams, restreamsEqual, cloneRestreams, log),
	}

	s.passwordHash.Subscribe(ctx, "persist_password_hash", func(_ context.Context, _ *string) {
		s.persist()
	})
	s.restreams.Subscribe(ctx, "persist_restreams", func(_ context.Context, _ []model.Restream) {
		s.persist()
	})

	return s, nil
}

func loadOrDefault(path string) (model.Root, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Root{}, nil
	}
	if err != nil {
		return model.Root{}, err
	}
	if len(data) == 0 {
		return model.Root{}, nil
	}
	var root model.Root
	if err := json.Unmarshal(data, &root); err != nil {
		return model.Root{}, fmt.Errorf("decoding journal: %w", err)
	}
	return root, nil
}

// persist writes the entire root document. Failures are logged, never
// returned: a journal write must never block the in-memory control plane.
func (s *Store) persist() {
	root := model.Root{
		PasswordHash: s.passwordHash.Get(),
		Restreams:    s.restreams.Get(),
	}
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		s.log.Error("failed to encode journal", "path", s.path, "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.log.Error("failed to create journal directory", "path", s.path, "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.log.Error("failed to write journal", "path", s.path, "error", err)
	}
}

// Snapshot returns a consistent-enough clone of the whole root for
// read-only callers (the operator API). The two cells are read
// independently, so a concurrent mutation can interleave; that's
// acceptable for a display/read path.
func (s *Store) Snapshot() model.Root {
	return model.Root{
		PasswordHash: s.passwordHash.Get(),
		Restreams:    s.restreams.Get(),
	}
}

// Restreams returns the current restream list, an independent clone.
func (s *Store) Restreams() []model.Restream {
	return s.restreams.Get()
}

// Subscribe registers handler against the restreams cell: this is how the
// reconciler learns about every distinct restream-list change.
func (s *Store) Subscribe(ctx context.Context, name string, handler func(context.Context, []model.Restream)) {
	s.restreams.Subscribe(ctx, name, handler)
}

// Close marks the store closed; subsequent mutators return ErrClosed. It
// does not stop the persister subscriptions — callers are expected to
// cancel the context Open was given.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// AddPullInput adds a new pull restream, or — when replaceID is non-nil —
// replaces the input of that restream in place. Returns (nil, nil) if
// replaceID is given but no such restream exists; (false, nil) if another
// restream already owns src; (true, nil) on create or replace.
func (s *Store) AddPullInput(src *url.URL, replaceID *id.ID) (*bool, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return observable.MutateReturning(s.restreams, func(rs *[]model.Restream) *bool {
		return addOrReplaceInput(rs, model.NewPullInput(src), replaceID)
	}), nil
}

// AddPushInput is AddPullInput for push inputs.
func (s *Store) AddPushInput(name string, replaceID *id.ID) (*bool, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return observable.MutateReturning(s.restreams, func(rs *[]model.Restream) *bool {
		return addOrReplaceInput(rs, model.NewPushInput(name), replaceID)
	}), nil
}

func boolPtr(b bool) *bool { return &b }

// addOrReplaceInput implements the shared add/replace contract for both
// input kinds.
func addOrReplaceInput(rs *[]model.Restream, in model.Input, replaceID *id.ID) *bool {
	if replaceID != nil {
		var current *model.Restream
		for i := range *rs {
			r := &(*rs)[i]
			if r.ID == *replaceID {
				current = r
				continue
			}
			if r.Input.Is(in) {
				return boolPtr(false)
			}
		}
		if current == nil {
			return nil
		}
		if current.Input.Is(in) {
			return boolPtr(true) // idempotent replace
		}
		current.Input = in
		current.BrokerPublisherID = ""
		for j := range current.Outputs {
			current.Outputs[j].Status = model.Offline
		}
		return boolPtr(true)
	}

	for _, r := range *rs {
		if r.Input.Is(in) {
			return boolPtr(false)
		}
	}
	*rs = append(*rs, model.Restream{ID: id.New(), Input: in})
	return boolPtr(true)
}

// RemoveInput removes the restream with id. Returns whether it existed.
func (s *Store) RemoveInput(restreamID id.ID) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	return observable.MutateReturning(s.restreams, func(rs *[]model.Restream) bool {
		for i := range *rs {
			if (*rs)[i].ID == restreamID {
				*rs = append((*rs)[:i], (*rs)[i+1:]...)
				return true
			}
		}
		return false
	}), nil
}

// EnableInput enables the restream's input. Returns nil if absent, false if
// already enabled, true if it was flipped.
func (s *Store) EnableInput(restreamID id.ID) (*bool, error) {
	return s.setInputEnabled(restreamID, true)
}

// DisableInput disables the restream's input, clearing its
// BrokerPublisherID. Same tri-value contract as EnableInput.
func (s *Store) DisableInput(restreamID id.ID) (*bool, error) {
	return s.setInputEnabled(restreamID, false)
}

func (s *Store) setInputEnabled(restreamID id.ID, want bool) (*bool, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return observable.MutateReturning(s.restreams, func(rs *[]model.Restream) *bool {
		r := findRestream(rs, restreamID)
		if r == nil {
			return nil
		}
		if r.Enabled == want {
			return boolPtr(false)
		}
		r.Enabled = want
		if !want {
			r.BrokerPublisherID = ""
		}
		return boolPtr(true)
	}), nil
}

func findRestream(rs *[]model.Restream, restreamID id.ID) *model.Restream {
	for i := range *rs {
		if (*rs)[i].ID == restreamID {
			return &(*rs)[i]
		}
	}
	return nil
}

// AddNewOutput appends a new, disabled, offline output to the restream's
// output list. Returns nil if the restream is absent, false if dst is
// already one of its outputs, true once appended.
func (s *Store) AddNewOutput(restreamID id.ID, dst *url.URL, label string) (*bool, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return observable.MutateReturning(s.restreams, func(rs *[]model.Restream) *bool {
		r := findRestream(rs, restreamID)
		if r == nil {
			return nil
		}
		candidate := model.Output{Dst: dst}
		for _, o := range r.Outputs {
			if o.Is(candidate) {
				return boolPtr(false)
			}
		}
		r.Outputs = append(r.Outputs, model.Output{ID: id.New(), Dst: dst, Label: label, Status: model.Offline})
		return boolPtr(true)
	}), nil
}

// RemoveOutput removes an output from a restream. nil if the restream is
// absent; otherwise reports whether the output existed.
func (s *Store) RemoveOutput(restreamID, outputID id.ID) (*bool, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return observable.MutateReturning(s.restreams, func(rs *[]model.Restream) *bool {
		r := findRestream(rs, restreamID)
		if r == nil {
			return nil
		}
		for i := range r.Outputs {
			if r.Outputs[i].ID == outputID {
				r.Outputs = append(r.Outputs[:i], r.Outputs[i+1:]...)
				return boolPtr(true)
			}
		}
		return boolPtr(false)
	}), nil
}

// EnableOutput / DisableOutput flip a single output's Enabled flag. Same
// tri-value contract as EnableInput.
func (s *Store) EnableOutput(restreamID, outputID id.ID) (*bool, error) {
	return s.setOutputEnabled(restreamID, outputID, true)
}

func (s *Store) DisableOutput(restreamID, outputID id.ID) (*bool, error) {
	return s.setOutputEnabled(restreamID, outputID, false)
}

func (s *Store) setOutputEnabled(restreamID, outputID id.ID, want bool) (*bool, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return observable.MutateReturning(s.restreams, func(rs *[]model.Restream) *bool {
		r := findRestream(rs, restreamID)
		if r == nil {
			return nil
		}
		for i := range r.Outputs {
			o := &r.Outputs[i]
			if o.ID != outputID {
				continue
			}
			if o.Enabled == want {
				return boolPtr(false)
			}
			o.Enabled = want
			return boolPtr(true)
		}
		return nil
	}), nil
}

// EnableAllOutputs / DisableAllOutputs flip every output of a restream to
// the same state. nil if the restream is absent; true if any output
// actually changed, false if every output was already in the target state.
func (s *Store) EnableAllOutputs(restreamID id.ID) (*bool, error) {
	return s.setAllOutputsEnabled(restreamID, true)
}

func (s *Store) DisableAllOutputs(restreamID id.ID) (*bool, error) {
	return s.setAllOutputsEnabled(restreamID, false)
}

func (s *Store) setAllOutputsEnabled(restreamID id.ID, want bool) (*bool, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return observable.MutateReturning(s.restreams, func(rs *[]model.Restream) *bool {
		r := findRestream(rs, restreamID)
		if r == nil {
			return nil
		}
		changed := false
		for i := range r.Outputs {
			if r.Outputs[i].Enabled != want {
				r.Outputs[i].Enabled = want
				changed = true
			}
		}
		return boolPtr(changed)
	}), nil
}
