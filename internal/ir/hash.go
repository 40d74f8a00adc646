package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix allows
// the hashing scheme to change without colliding with stored hashes.
const (
	DomainSnapshot = "formsync/snapshot/v1"
	DomainEvent    = "formsync/event/v1"
	DomainRuleSet  = "formsync/ruleset/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotHash computes the content hash of a field store snapshot. Two
// drafts with equal fields hash equally regardless of key insertion order.
func SnapshotHash(fields IRObject) (string, error) {
	canonical, err := MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// EventID computes the content-addressed ID of a logged draft event.
// The ID is stable across replays given the same inputs.
func EventID(draftID, kind string, payload IRObject, seq int64) (string, error) {
	obj := IRObject{
		"draft_id": IRString(draftID),
		"kind":     IRString(kind),
		"payload":  payload,
		"seq":      IRInt(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// RuleSetHash fingerprints a compiled rule set so that a saved draft can
// record which rules produced it.
func RuleSetHash(rs *RuleSet) (string, error) {
	data, err := json.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: failed to encode: %w", err)
	}
	v, err := UnmarshalValue(data)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: failed to decode: %w", err)
	}
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleSet, canonical), nil
}

// MustSnapshotHash is like SnapshotHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSnapshotHash(fields IRObject) string {
	h, err := SnapshotHash(fields)
	if err != nil {
		panic(err)
	}
	return h
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventID(draftID, kind string, payload IRObject, seq int64) string {
	id, err := EventID(draftID, kind, payload, seq)
	if err != nil {
		panic(err)
	}
	return id
}
