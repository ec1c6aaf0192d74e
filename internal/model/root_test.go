package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/restreamctl/restreamer/internal/id"
)

func TestRootRoundTripResetsLiveness(t *testing.T) {
	hash := "argon2-hash"
	r := Root{
		PasswordHash: &hash,
		Restreams: []Restream{
			{
				ID:                id.New(),
				Input:             NewPushInput("studio"),
				Enabled:           true,
				BrokerPublisherID: "client-42",
				Outputs: []Output{
					{ID: id.New(), Dst: mustURL(t, "rtmp://cdn1/live"), Enabled: true, Status: Online},
				},
			},
		},
	}
	r.Restreams[0].Input.SetStatus(Online)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Root
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if len(got.Restreams) != 1 {
		t.Fatalf("got %d restreams, want 1", len(got.Restreams))
	}
	rs := got.Restreams[0]
	if rs.Input.Status() != Offline {
		t.Errorf("reloaded input status = %v, want Offline", rs.Input.Status())
	}
	if rs.BrokerPublisherID != "" {
		t.Errorf("reloaded broker_publisher_id = %q, want empty", rs.BrokerPublisherID)
	}
	if rs.Outputs[0].Status != Offline {
		t.Errorf("reloaded output status = %v, want Offline", rs.Outputs[0].Status)
	}

	// Identity, order, and flags survive the round trip (I5).
	if rs.ID != r.Restreams[0].ID {
		t.Error("restream id did not survive round trip")
	}
	if !rs.Enabled {
		t.Error("enabled flag did not survive round trip")
	}
	if rs.Outputs[0].Dst.String() != "rtmp://cdn1/live" {
		t.Errorf("output dst = %q, want rtmp://cdn1/live", rs.Outputs[0].Dst.String())
	}
	if *got.PasswordHash != hash {
		t.Errorf("password_hash = %q, want %q", *got.PasswordHash, hash)
	}
}

func TestRootMarshalOmitsTransientFields(t *testing.T) {
	r := Root{Restreams: []Restream{{
		ID:      id.New(),
		Input:   NewPushInput("studio"),
		Enabled: true,
	}}}
	r.Restreams[0].BrokerPublisherID = "client-1"
	r.Restreams[0].Input.SetStatus(Online)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)
	if strings.Contains(s, "client-1") {
		t.Error("broker_publisher_id leaked into the serialized document")
	}
	if strings.Contains(s, "status") {
		t.Error("status leaked into the serialized document")
	}
	if strings.Contains(s, "srs_publisher_id") {
		t.Error("srs_publisher_id must never be emitted")
	}
}
