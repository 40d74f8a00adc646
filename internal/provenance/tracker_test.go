package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/ir"
)

func TestRecordAndGet(t *testing.T) {
	tr := New()
	_, ok := tr.GetSource("form3_applicant_name")
	assert.False(t, ok)

	tr.RecordSource("form3_applicant_name", "form1")
	tag, ok := tr.GetSource("form3_applicant_name")
	require.True(t, ok)
	assert.Equal(t, "form1", tag)
	assert.True(t, tr.IsDerived("form3_applicant_name"))
	assert.False(t, tr.IsUser("form3_applicant_name"))

	tr.RecordSource("form3_applicant_name", "form2")
	tag, _ = tr.GetSource("form3_applicant_name")
	assert.Equal(t, "form2", tag)
}

func TestUserEditIsPermanentUntilCleared(t *testing.T) {
	tr := New()
	tr.RecordSource("signatory", "form26")
	tr.MarkUserEdited("signatory")

	tr.RecordSource("signatory", "form1")
	tag, _ := tr.GetSource("signatory")
	assert.Equal(t, ir.TagUser, tag, "derivation must not override a user edit")
	assert.False(t, tr.IsDerived("signatory"))

	tr.Clear("signatory")
	_, ok := tr.GetSource("signatory")
	assert.False(t, ok)

	tr.RecordSource("signatory", "form1")
	tag, _ = tr.GetSource("signatory")
	assert.Equal(t, "form1", tag)
}

func TestZeroValueTracker(t *testing.T) {
	var tr Tracker
	_, ok := tr.GetSource("form1_title")
	assert.False(t, ok)
	assert.False(t, tr.IsUser("form1_title"))

	assert.NotPanics(t, func() {
		tr.RecordSource("form2_title", "form1")
		tr.MarkUserEdited("form3_date")
	})
	tag, ok := tr.GetSource("form2_title")
	require.True(t, ok)
	assert.Equal(t, "form1", tag)
	assert.True(t, tr.IsUser("form3_date"))
	assert.Equal(t, []string{"form2_title", "form3_date"}, tr.Paths())

	c := (&Tracker{}).Clone()
	assert.NotPanics(t, func() { c.RecordSource("form9_title", "form1") })
	assert.Equal(t, 1, c.Len())
}

func TestCloneIsIndependent(t *testing.T) {
	tr := New()
	tr.RecordSource("a", "form1")

	c := tr.Clone()
	c.MarkUserEdited("a")
	c.RecordSource("b", "form2")

	tag, _ := tr.GetSource("a")
	assert.Equal(t, "form1", tag)
	assert.Equal(t, 1, tr.Len())
	assert.False(t, tr.Equal(c))
}

func TestSnapshotRoundTrip(t *testing.T) {
	tr := New()
	tr.RecordSource("b", "default")
	tr.MarkUserEdited("a")

	snap := tr.Snapshot()
	assert.Equal(t, map[string]string{"a": "user", "b": "default"}, snap)

	back := FromSnapshot(snap)
	assert.True(t, tr.Equal(back))
	assert.Equal(t, []string{"a", "b"}, back.Paths())

	snap["c"] = "x"
	assert.Equal(t, 2, tr.Len(), "snapshot must be a copy")
}

func TestFromSnapshotSkipsEmptyTags(t *testing.T) {
	tr := FromSnapshot(map[string]string{"a": "", "b": "form1"})
	assert.Equal(t, []string{"b"}, tr.Paths())
}

func TestReset(t *testing.T) {
	tr := New()
	tr.RecordSource("a", "form1")
	tr.MarkUserEdited("b")
	tr.Reset()
	assert.Equal(t, 0, tr.Len())
}

func TestTemplateTag(t *testing.T) {
	tag := TemplateTag("form6_transfer")
	assert.Equal(t, "template:form6_transfer", tag)
	assert.True(t, IsTemplateTag(tag))
	assert.False(t, IsTemplateTag("form1"))
}
