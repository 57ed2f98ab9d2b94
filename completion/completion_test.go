package completion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	aicferrors "aicf/core/errors"
	"aicf/core/types"
	"aicf/quota"
	"aicf/registry"
	"aicf/storage"
)

const digest64 = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
const otherDigest64 = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

func setup(t *testing.T) (*Receiver, storage.Store, *registry.Registry, *quota.Tracker, types.HexID) {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := registry.New(registry.NewMemoryProviderStore(), nil, nil, registry.Config{})
	_, err := reg.RegisterProvider("prov1", 1, nil, true, 1000, "us")
	require.NoError(t, err)

	q := quota.New()
	r := New(store, reg, q, nil)

	job := types.Job{
		JobID:       "job1",
		Kind:        types.JobKindAI,
		Status:      types.JobQueued,
		CreatedAt:   0,
		TTLSeconds:  3600,
		MaxAttempts: 3,
	}
	require.NoError(t, store.PutJob(context.Background(), job))
	_, err = store.Assign(context.Background(), "job1", "prov1", 300, 0)
	require.NoError(t, err)

	return r, store, reg, q, "prov1"
}

func TestAcceptRejectsInvalidDigest(t *testing.T) {
	r, _, _, _, prov := setup(t)
	err := r.Accept(context.Background(), Submission{JobID: "job1", ProviderID: prov, OutputDigest: "not-hex"}, 100)
	require.ErrorIs(t, err, aicferrors.ErrSchemaInvalid)
}

func TestAcceptRejectsJailedProvider(t *testing.T) {
	r, _, reg, _, prov := setup(t)
	require.NoError(t, reg.Jail(prov, 1000))
	err := r.Accept(context.Background(), Submission{JobID: "job1", ProviderID: prov, OutputDigest: digest64}, 100)
	require.ErrorIs(t, err, aicferrors.ErrJailed)
}

func TestAcceptSucceedsAndCommitsQuota(t *testing.T) {
	r, store, _, q, prov := setup(t)
	q.SetLimits(prov, quota.ProviderLimits{AIUnitsPerEpoch: 100, MaxConcurrent: 1})
	_, err := q.Reserve(prov, types.JobKindAI, 0, 1, "job1")
	require.NoError(t, err)

	err = r.Accept(context.Background(), Submission{JobID: "job1", ProviderID: prov, OutputDigest: digest64}, 100)
	require.NoError(t, err)

	job, err := store.GetJob(context.Background(), "job1")
	require.NoError(t, err)
	require.Equal(t, types.JobCompleted, job.Status)
	require.Equal(t, digest64, job.Result)

	usage := q.Snapshot(prov, types.JobKindAI, 0)
	require.Equal(t, uint64(1), usage.Used)
	require.Equal(t, uint64(0), usage.Reserved)
}

func TestAcceptIsIdempotentForIdenticalDigest(t *testing.T) {
	r, _, _, _, prov := setup(t)
	require.NoError(t, r.Accept(context.Background(), Submission{JobID: "job1", ProviderID: prov, OutputDigest: digest64}, 100))
	// Second submission with the same digest is an idempotent ack.
	require.NoError(t, r.Accept(context.Background(), Submission{JobID: "job1", ProviderID: prov, OutputDigest: digest64}, 200))
}

func TestAcceptRejectsDifferentDigestAfterCompletion(t *testing.T) {
	r, _, _, _, prov := setup(t)
	require.NoError(t, r.Accept(context.Background(), Submission{JobID: "job1", ProviderID: prov, OutputDigest: digest64}, 100))
	err := r.Accept(context.Background(), Submission{JobID: "job1", ProviderID: prov, OutputDigest: otherDigest64}, 200)
	require.ErrorIs(t, err, aicferrors.ErrProofInvalid)
}

func TestAcceptRejectsNonHolder(t *testing.T) {
	r, _, reg, _, _ := setup(t)
	_, err := reg.RegisterProvider("impostor", 1, nil, true, 1000, "us")
	require.NoError(t, err)
	err = r.Accept(context.Background(), Submission{JobID: "job1", ProviderID: "impostor", OutputDigest: digest64}, 100)
	require.Error(t, err)
}

func TestSanitizeRefsDropsUnknownKinds(t *testing.T) {
	refs := []ProofRef{
		{Kind: "da_commitment", Value: "x"},
		{Kind: "bogus_kind", Value: "y"},
		{Kind: "vdf_proof", Value: "z"},
	}
	out := SanitizeRefs(refs)
	require.Len(t, out, 2)
	require.Equal(t, "da_commitment", out[0].Kind)
	require.Equal(t, "vdf_proof", out[1].Kind)
}

func TestValidateDigestAccepts32And64Byte(t *testing.T) {
	require.True(t, ValidateDigest(digest64))
	require.True(t, ValidateDigest(digest64+otherDigest64))
	require.False(t, ValidateDigest("not-hex"))
	require.False(t, ValidateDigest("aa"))
}
