package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEventsOrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, seq := range []int64{3, 1, 2} {
		_, _, err := s.AppendEvent(ctx, testEvent("d1", seq, "form2_title", "v"))
		require.NoError(t, err)
	}
	_, _, err := s.AppendEvent(ctx, testEvent("other", 1, "form2_title", "v"))
	require.NoError(t, err)

	events, err := s.ReadEvents(ctx, "d1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, "d1", ev.DraftID)
	}
	assert.Equal(t, testEvent("d1", 2, "form2_title", "v").Payload, events[1].Payload)
	assert.Equal(t, testEvent("d1", 2, "form2_title", "v").At, events[1].At)
}

func TestReadEventsAfterSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for seq := int64(1); seq <= 4; seq++ {
		_, _, err := s.AppendEvent(ctx, testEvent("d1", seq, "form2_title", "v"))
		require.NoError(t, err)
	}

	events, err := s.ReadEvents(ctx, "d1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(3), events[0].Seq)
	assert.Equal(t, int64(4), events[1].Seq)
}

func TestReadEventsEmpty(t *testing.T) {
	s := createTestStore(t)

	events, err := s.ReadEvents(context.Background(), "none", 0)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastSeq(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	for _, n := range []int64{1, 5, 3} {
		_, _, err := s.AppendEvent(ctx, testEvent("d1", n, "a", "b"))
		require.NoError(t, err)
	}
	seq, err = s.LastSeq(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), seq)
}

func TestProvenanceHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteProvenance(ctx, DiffProvenance("d1", 1, nil, map[string]string{
		"form3_applicant_name": "form1",
		"form5_applicant_name": "form1",
	})))
	require.NoError(t, s.WriteProvenance(ctx, DiffProvenance("d1", 2,
		map[string]string{"form3_applicant_name": "form1"},
		map[string]string{"form3_applicant_name": "form2"},
	)))
	require.NoError(t, s.WriteProvenance(ctx, []ProvenanceChange{
		{DraftID: "d1", Seq: 4, Path: "form3_applicant_name", Tag: "user"},
	}))
	// Rewriting a recorded change is a no-op.
	require.NoError(t, s.WriteProvenance(ctx, []ProvenanceChange{
		{DraftID: "d1", Seq: 4, Path: "form3_applicant_name", Tag: "user"},
	}))
	require.NoError(t, s.WriteProvenance(ctx, nil))

	history, err := s.ReadProvenanceHistory(ctx, "d1", "form3_applicant_name")
	require.NoError(t, err)
	assert.Equal(t, []ProvenanceChange{
		{DraftID: "d1", Seq: 1, Path: "form3_applicant_name", Tag: "form1"},
		{DraftID: "d1", Seq: 2, Path: "form3_applicant_name", Tag: "form2"},
		{DraftID: "d1", Seq: 4, Path: "form3_applicant_name", Tag: "user"},
	}, history)

	all, err := s.ReadProvenanceHistory(ctx, "d1", "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "form5_applicant_name", all[1].Path)

	none, err := s.ReadProvenanceHistory(ctx, "d2", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}
