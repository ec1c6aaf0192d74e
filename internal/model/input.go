package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/restreamctl/restreamer/internal/id"
)

// Kind discriminates the two closed variants of Input. The set is closed by
// design: adding a third kind means touching every switch in this file.
type Kind int

const (
	KindPull Kind = iota
	KindPush
)

// PullInput is fetched by the broker from an upstream src.
type PullInput struct {
	Src    *url.URL
	Status Status
}

// Is reports whether two pull inputs share identity (same src).
func (p PullInput) Is(other PullInput) bool {
	return urlEqual(p.Src, other.Src)
}

// PushInput is published into the broker under app Name.
type PushInput struct {
	Name   string
	Status Status
}

// Is reports whether two push inputs share identity (same name).
func (p PushInput) Is(other PushInput) bool {
	return p.Name == other.Name
}

// Input is a tagged union of PullInput and PushInput. Only the field named
// by Kind is meaningful.
type Input struct {
	Kind Kind
	Pull PullInput
	Push PushInput
}

// NewPullInput builds a Pull input, offline by default.
func NewPullInput(src *url.URL) Input {
	return Input{Kind: KindPull, Pull: PullInput{Src: src, Status: Offline}}
}

// NewPushInput builds a Push input, offline by default.
func NewPushInput(name string) Input {
	return Input{Kind: KindPush, Push: PushInput{Name: name, Status: Offline}}
}

func (in Input) IsPull() bool { return in.Kind == KindPull }

func (in Input) Status() Status {
	if in.Kind == KindPull {
		return in.Pull.Status
	}
	return in.Push.Status
}

func (in *Input) SetStatus(s Status) {
	if in.Kind == KindPull {
		in.Pull.Status = s
	} else {
		in.Push.Status = s
	}
}

// Is reports identity equality: same kind and same underlying identity
// (src for pull, name for push). Used by the replace-in-place mutator to
// decide whether a replacement is a no-op.
func (in Input) Is(other Input) bool {
	if in.Kind != other.Kind {
		return false
	}
	if in.Kind == KindPull {
		return in.Pull.Is(other.Pull)
	}
	return in.Push.Is(other.Push)
}

// Equal reports full field equality, including Status — unlike Is, which
// only compares identity. Used by the observable cell wrapping the
// restreams list to decide whether a mutation actually changed anything.
func (in Input) Equal(other Input) bool {
	if in.Kind != other.Kind {
		return false
	}
	if in.Kind == KindPull {
		return urlEqual(in.Pull.Src, other.Pull.Src) && in.Pull.Status == other.Pull.Status
	}
	return in.Push.Name == other.Push.Name && in.Push.Status == other.Push.Status
}

// Fingerprint is the stable 64-bit hash of the input's identity: the pull
// src bytes, or the push name bytes.
func (in Input) Fingerprint() uint64 {
	if in.Kind == KindPull {
		return id.FingerprintString(in.Pull.Src.String())
	}
	return id.FingerprintString(in.Push.Name)
}

// BrokerURL is the contract handed to the worker as its source: where the
// broker expects this input's publisher to land.
func (in Input) BrokerURL() *url.URL {
	var raw string
	if in.Kind == KindPull {
		raw = fmt.Sprintf("rtmp://127.0.0.1:1935/pull_%x/in", in.Fingerprint())
	} else {
		raw = fmt.Sprintf("rtmp://127.0.0.1:1935/%s/in", in.Push.Name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		// raw is built from a known-good template plus a hex fingerprint or a
		// validated push name; it is always a well-formed rtmp:// URL.
		panic(err)
	}
	return u
}

// UsesApp reports whether the broker "app" name in a callback request
// belongs to this input: for pull, "pull_<hex fingerprint>"; for push, the
// bare push name.
func (in Input) UsesApp(app string) bool {
	if in.Kind == KindPull {
		const prefix = "pull_"
		if !strings.HasPrefix(app, prefix) {
			return false
		}
		fp, err := strconv.ParseUint(app[len(prefix):], 16, 64)
		if err != nil {
			return false
		}
		return fp == in.Fingerprint()
	}
	return app == in.Push.Name
}

// wireInput mirrors the persisted-document shape of §6: exactly one of
// "pull" or "push" is present.
type wireInput struct {
	Pull *wirePullInput `json:"pull,omitempty"`
	Push *wirePushInput `json:"push,omitempty"`
}

type wirePullInput struct {
	Src string `json:"src"`
}

type wirePushInput struct {
	Name string `json:"name"`
}

func (in Input) MarshalJSON() ([]byte, error) {
	var w wireInput
	if in.Kind == KindPull {
		src := ""
		if in.Pull.Src != nil {
			src = in.Pull.Src.String()
		}
		w.Pull = &wirePullInput{Src: src}
	} else {
		w.Push = &wirePushInput{Name: in.Push.Name}
	}
	return json.Marshal(w)
}

func (in *Input) UnmarshalJSON(data []byte) error {
	var w wireInput
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Pull != nil:
		u, err := url.Parse(w.Pull.Src)
		if err != nil {
			return fmt.Errorf("model: invalid pull src %q: %w", w.Pull.Src, err)
		}
		*in = NewPullInput(u)
	case w.Push != nil:
		*in = NewPushInput(w.Push.Name)
	default:
		return fmt.Errorf("model: input document has neither \"pull\" nor \"push\"")
	}
	return nil
}

func urlEqual(a, b *url.URL) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}
