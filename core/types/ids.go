// Package types defines the identifiers, token amounts, and timestamp
// primitives shared by every AICF component.
package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

// HexID is a lowercase hex-encoded identifier, e.g. a job id or lease id.
type HexID string

// String implements fmt.Stringer.
func (h HexID) String() string { return string(h) }

// Valid reports whether the id is non-empty, lowercase hex of the expected
// byte length. A zero length means "any length accepted".
func (h HexID) Valid(length int) bool {
	s := string(h)
	if s == "" {
		return false
	}
	if length > 0 && len(s) != length*2 {
		return false
	}
	if strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// NewRandomID returns a random hex id with the given byte length, suitable
// for job_id/lease_id/escrow_id generation when no deterministic derivation
// is required. The common 16-byte case (lease ids, withdrawal request ids)
// is generated via uuid.NewRandom rather than a raw crypto/rand read, so
// those ids remain valid RFC 4122 v4 UUIDs under the hex encoding.
func NewRandomID(byteLen int) (HexID, error) {
	if byteLen == 16 {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("types: generate random id: %w", err)
		}
		return HexID(hex.EncodeToString(id[:])), nil
	}
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("types: generate random id: %w", err)
	}
	return HexID(hex.EncodeToString(buf)), nil
}

// DeriveID computes a deterministic 32-byte blake3 digest over the supplied
// domain-separated parts, returned as a hex id. Used for quota reservation
// ids and escrow ids where determinism under retries is required.
func DeriveID(domain string, parts ...string) HexID {
	h := blake3.New(32, nil)
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return HexID(hex.EncodeToString(sum))
}

// IsHex reports whether s is valid lowercase hex of exactly byteLen bytes
// (byteLen*2 hex characters). Used to validate nullifiers (64-hex) and
// completion digests (32 or 64 bytes).
func IsHex(s string, byteLens ...int) bool {
	if s == "" {
		return false
	}
	if strings.ToLower(s) != s {
		return false
	}
	if _, err := hex.DecodeString(s); err != nil {
		return false
	}
	if len(byteLens) == 0 {
		return true
	}
	for _, want := range byteLens {
		if len(s) == want*2 {
			return true
		}
	}
	return false
}

// bech32HRP is the human-readable prefix used for AICF provider/payee
// addresses rendered from a raw hex identifier.
const bech32HRP = "aicf"

// FormatAddress renders a raw hex-identified account (provider id, payee
// address) as a bech32 string for display in RPC views and settlement
// address books. It is purely cosmetic: internal bookkeeping always keys off
// the raw HexID.
func FormatAddress(raw HexID) (string, error) {
	data, err := hex.DecodeString(string(raw))
	if err != nil {
		return "", fmt.Errorf("types: decode address: %w", err)
	}
	converted, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("types: convert address bits: %w", err)
	}
	return bech32.Encode(bech32HRP, converted)
}

// ParseAddress recovers the raw hex identifier encoded within a bech32
// address produced by FormatAddress.
func ParseAddress(addr string) (HexID, error) {
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return "", fmt.Errorf("types: decode bech32 address: %w", err)
	}
	if hrp != bech32HRP {
		return "", fmt.Errorf("types: unexpected address prefix %q", hrp)
	}
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("types: convert address bits: %w", err)
	}
	return HexID(hex.EncodeToString(converted)), nil
}
