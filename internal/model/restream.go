package model

import (
	"encoding/json"
	"net/url"

	"github.com/restreamctl/restreamer/internal/id"
)

// Output is one forwarding destination of a Restream's input.
type Output struct {
	ID      id.ID
	Dst     *url.URL
	Label   string // empty means "no label"
	Enabled bool
	Status  Status // never persisted
}

// Is reports destination identity equality, used for (I2) dedup within a
// restream.
func (o Output) Is(other Output) bool {
	return urlEqual(o.Dst, other.Dst)
}

// Fingerprint is the stable hash of the output's destination, used by the
// reconciler to detect when a worker's output set actually changed.
func (o Output) Fingerprint() uint64 {
	return id.FingerprintString(o.Dst.String())
}

func (o Output) Clone() Output {
	return o
}

// Equal reports full field equality, including Status.
func (o Output) Equal(other Output) bool {
	return o.ID == other.ID && urlEqual(o.Dst, other.Dst) && o.Label == other.Label &&
		o.Enabled == other.Enabled && o.Status == other.Status
}

type wireOutput struct {
	ID    id.ID  `json:"id"`
	Dst   string `json:"dst"`
	Label string `json:"label,omitempty"`
	On    bool   `json:"enabled"`
}

func (o Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOutput{
		ID:    o.ID,
		Dst:   o.Dst.String(),
		Label: o.Label,
		On:    o.Enabled,
	})
}

func (o *Output) UnmarshalJSON(data []byte) error {
	var w wireOutput
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	u, err := url.Parse(w.Dst)
	if err != nil {
		return err
	}
	*o = Output{ID: w.ID, Dst: u, Label: w.Label, Enabled: w.On, Status: Offline}
	return nil
}

// Restream is one declared forwarding unit: one input plus its outputs.
type Restream struct {
	ID                id.ID
	Input             Input
	Outputs           []Output
	Enabled           bool
	BrokerPublisherID string // transient, never persisted; empty means unset
}

// Clone returns a deep copy suitable for handing to a reader or a
// subscriber as a stable snapshot.
func (r Restream) Clone() Restream {
	out := r
	out.Outputs = make([]Output, len(r.Outputs))
	copy(out.Outputs, r.Outputs)
	return out
}

// Equal reports full field equality, including transient Status and
// BrokerPublisherID — this is what the observable cell dedups on, so a
// republish with an unchanged client id must not register as a change.
func (r Restream) Equal(other Restream) bool {
	if r.ID != other.ID || r.Enabled != other.Enabled || r.BrokerPublisherID != other.BrokerPublisherID {
		return false
	}
	if !r.Input.Equal(other.Input) {
		return false
	}
	if len(r.Outputs) != len(other.Outputs) {
		return false
	}
	for i := range r.Outputs {
		if !r.Outputs[i].Equal(other.Outputs[i]) {
			return false
		}
	}
	return true
}

type wireRestream struct {
	ID      id.ID    `json:"id"`
	Input   Input    `json:"input"`
	Outputs []Output `json:"outputs"`
	Enabled bool     `json:"enabled"`
}

func (r Restream) MarshalJSON() ([]byte, error) {
	outputs := r.Outputs
	if outputs == nil {
		outputs = []Output{}
	}
	return json.Marshal(wireRestream{
		ID:      r.ID,
		Input:   r.Input,
		Outputs: outputs,
		Enabled: r.Enabled,
	})
}

func (r *Restream) UnmarshalJSON(data []byte) error {
	var w wireRestream
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Restream{ID: w.ID, Input: w.Input, Outputs: w.Outputs, Enabled: w.Enabled}
	return nil
}
