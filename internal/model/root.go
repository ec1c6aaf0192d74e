package model

import (
	"encoding/json"

	"github.com/restreamctl/restreamer/internal/id"
)

// currentSchemaVersion is bumped whenever the on-disk document shape
// changes incompatibly. A missing "schema_version" field on load is
// treated as version 1 — every document written before this field existed
// is a version-1 document by definition.
const currentSchemaVersion = 1

// Root is the singleton, process-wide authoritative state: the operator
// password hash and the ordered list of declared restreams.
type Root struct {
	PasswordHash *string
	Restreams    []Restream
}

// Clone returns a deep copy, suitable as a stable snapshot handed to a
// reader or a subscriber.
func (r Root) Clone() Root {
	out := Root{Restreams: make([]Restream, len(r.Restreams))}
	if r.PasswordHash != nil {
		h := *r.PasswordHash
		out.PasswordHash = &h
	}
	for i, rs := range r.Restreams {
		out.Restreams[i] = rs.Clone()
	}
	return out
}

// FindRestream returns a pointer into r.Restreams, or nil if id is absent.
// Callers must hold whatever lock guards r; the pointer is only valid for
// the duration of that lock.
func (r *Root) FindRestream(restreamID id.ID) *Restream {
	for i := range r.Restreams {
		if r.Restreams[i].ID == restreamID {
			return &r.Restreams[i]
		}
	}
	return nil
}

type wireRoot struct {
	SchemaVersion int        `json:"schema_version,omitempty"`
	PasswordHash  *string    `json:"password_hash"`
	Restreams     []Restream `json:"restreams"`
}

// MarshalJSON emits the §6 wire document: status and broker_publisher_id
// are never serialized (Restream/Output's own MarshalJSON already omit
// them).
func (r Root) MarshalJSON() ([]byte, error) {
	restreams := r.Restreams
	if restreams == nil {
		restreams = []Restream{}
	}
	return json.Marshal(wireRoot{
		SchemaVersion: currentSchemaVersion,
		PasswordHash:  r.PasswordHash,
		Restreams:     restreams,
	})
}

// UnmarshalJSON reloads a document, resetting every input/output Status to
// Offline and clearing every BrokerPublisherID, per (I5): liveness is
// runtime truth, never journaled.
func (r *Root) UnmarshalJSON(data []byte) error {
	var w wireRoot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	restreams := w.Restreams
	for i := range restreams {
		restreams[i].Input.SetStatus(Offline)
		restreams[i].BrokerPublisherID = ""
		for j := range restreams[i].Outputs {
			restreams[i].Outputs[j].Status = Offline
		}
	}
	*r = Root{PasswordHash: w.PasswordHash, Restreams: restreams}
	return nil
}
