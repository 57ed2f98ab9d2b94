// Package completion implements the completion receiver: validate an
// inbound result digest against the active lease, atomically
// apply it via the Store, and sanitize proof references before handing the
// record to the proof bridge.
package completion

import (
	"context"

	"aicf/core/errors"
	"aicf/core/events"
	"aicf/core/types"
	"aicf/quota"
	"aicf/registry"
	"aicf/storage"
)

// ProofRefKind is a recognized proof reference kind; unrecognized kinds are
// silently dropped rather than rejected.
type ProofRefKind string

const (
	RefDACommitment ProofRefKind = "da_commitment"
	RefOnchainProof ProofRefKind = "onchain_proof"
	RefAttestation  ProofRefKind = "attestation"
	RefVDFProof     ProofRefKind = "vdf_proof"
)

var knownRefKinds = map[string]bool{
	string(RefDACommitment): true,
	string(RefOnchainProof): true,
	string(RefAttestation):  true,
	string(RefVDFProof):     true,
}

// ProofRef is a single sanitized proof reference.
type ProofRef struct {
	Kind  string
	Value string
}

// Submission is an inbound completion report from a provider.
type Submission struct {
	JobID        types.HexID
	ProviderID   types.HexID
	OutputDigest string
	ProofRefs    []ProofRef
	Meta         map[string]string
}

// SanitizeRefs drops any proof reference whose kind is not recognized.
func SanitizeRefs(refs []ProofRef) []ProofRef {
	out := make([]ProofRef, 0, len(refs))
	for _, r := range refs {
		if knownRefKinds[r.Kind] {
			out = append(out, r)
		}
	}
	return out
}

// ValidateDigest checks that digest is hex-encoded and either 32 or 64
// bytes (64 or 128 hex characters).
func ValidateDigest(digest string) bool {
	return types.IsHex(digest, 32) || types.IsHex(digest, 64)
}

// Receiver validates and applies completion submissions.
type Receiver struct {
	store    storage.Store
	registry *registry.Registry
	quotas   *quota.Tracker
	emitter  events.Emitter
}

// New constructs a Receiver.
func New(store storage.Store, reg *registry.Registry, quotas *quota.Tracker, emitter events.Emitter) *Receiver {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Receiver{store: store, registry: reg, quotas: quotas, emitter: emitter}
}

// Accept validates and applies a completion submission. A duplicate
// submission with an identical digest to an already-COMPLETED job is
// treated as an idempotent acknowledgement.
func (r *Receiver) Accept(ctx context.Context, sub Submission, now types.UnixMillis) error {
	if !ValidateDigest(sub.OutputDigest) {
		return errors.ErrSchemaInvalid
	}
	if r.registry.IsJailed(sub.ProviderID) {
		return errors.ErrJailed
	}
	if !r.registry.IsAllowed(sub.ProviderID) {
		return errors.ErrRegistryDenied
	}

	sub.ProofRefs = SanitizeRefs(sub.ProofRefs)

	if err := r.store.MarkCompleted(ctx, sub.JobID, sub.ProviderID, sub.OutputDigest, now); err != nil {
		return err
	}
	// Commits the nominal reservation booked at assignment time. The
	// settlement pipeline reconciles it to the proof's actual work units
	// via AdjustCommitted once that figure is known.
	r.quotas.CommitJob(sub.JobID)

	evt := events.Completed{JobID: string(sub.JobID), ProviderID: string(sub.ProviderID), Success: true, Digest: sub.OutputDigest, Millis: int64(now)}
	r.emitter.Emit(evt)
	return r.store.AppendEvent(ctx, evt)
}
