// Package codec implements the wire framing for P-OSPF datagrams: a
// self-describing JSON payload (HELLO or LSA) encrypted with a shared
// AES-256-CBC key, as specified in spec.md §4.1.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind discriminates the two message types carried on the wire.
type Kind string

const (
	KindHello Kind = "HELLO"
	KindLSA   Kind = "LSA"
)

// Hello mirrors spec.md §4.1's HELLO payload fields.
type Hello struct {
	Kind           Kind     `json:"kind"`
	RouterID       string   `json:"router_id"`
	SenderIPv4     string   `json:"sender_ipv4"`
	InterfaceHint  string   `json:"interface_hint"`
	KnownNeighbors []string `json:"known_neighbors"`
	CapacityMbps   uint32   `json:"capacity_mbps"`
	AdminActive    bool     `json:"admin_active"`
}

// Link describes one adjacency carried inside an LSA.
type Link struct {
	Peer string `json:"peer"`
	Cost uint32 `json:"cost"`
	Up   bool   `json:"up"`
}

// LSA mirrors spec.md §4.1's LSA payload fields, plus the stub_prefixes
// field added by spec.md §4.6 for SPF's destination advertisement.
type LSA struct {
	Kind         Kind     `json:"kind"`
	Origin       string   `json:"origin"`
	Seq          uint64   `json:"seq"`
	Links        []Link   `json:"links"`
	StubPrefixes []string `json:"stub_prefixes"`
}

// Message is the decoded form of either payload. Exactly one of Hello or
// LSA is non-nil, selected by Kind.
type Message struct {
	Kind  Kind
	Hello *Hello
	LSA   *LSA
}

func encodeHelloJSON(h *Hello) ([]byte, error) {
	h.Kind = KindHello
	return json.Marshal(h)
}

func encodeLSAJSON(l *LSA) ([]byte, error) {
	l.Kind = KindLSA
	return json.Marshal(l)
}

// decodePayload strictly validates the decrypted JSON document: it must
// parse, declare a known kind, and carry every field that kind requires.
func decodePayload(raw []byte) (*Message, error) {
	var probe struct {
		Kind Kind `json:"kind"`
	}
	// The probe only reads "kind"; the payload's other fields are checked
	// by the strict per-kind decode below.
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, newDecodeErr(BadJSON, err)
	}

	switch probe.Kind {
	case KindHello:
		var h Hello
		if err := strictUnmarshal(raw, &h); err != nil {
			return nil, newDecodeErr(BadJSON, err)
		}
		if err := validateHello(&h); err != nil {
			return nil, err
		}
		return &Message{Kind: KindHello, Hello: &h}, nil
	case KindLSA:
		var l LSA
		if err := strictUnmarshal(raw, &l); err != nil {
			return nil, newDecodeErr(BadJSON, err)
		}
		if err := validateLSA(&l); err != nil {
			return nil, err
		}
		return &Message{Kind: KindLSA, LSA: &l}, nil
	default:
		return nil, newDecodeErr(UnknownKind, fmt.Errorf("kind=%q", probe.Kind))
	}
}

func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

func validateHello(h *Hello) error {
	if h.RouterID == "" {
		return newMissingField("router_id")
	}
	if h.SenderIPv4 == "" {
		return newMissingField("sender_ipv4")
	}
	if h.InterfaceHint == "" {
		return newMissingField("interface_hint")
	}
	return nil
}

func validateLSA(l *LSA) error {
	if l.Origin == "" {
		return newMissingField("origin")
	}
	return nil
}
