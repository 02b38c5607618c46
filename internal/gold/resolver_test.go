package gold

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batch with two instances; the first was answered by two annotators.
func sampleTable() *Table {
	return &Table{
		Columns: []string{"Input.sentence", "Input.context", "Answer.rating", "Answer.comment"},
		Rows: [][]string{
			{"the sky is blue", "ctx-1", "4", "looks right"},
			{"the sky is blue", "ctx-1", "5", "agree"},
			{"grass is purple", "ctx-2", "1", "wrong"},
		},
	}
}

func TestFieldNames(t *testing.T) {
	t.Parallel()

	got := sampleTable().FieldNames()
	assert.Equal(t, []string{"rating", "comment"}, got)

	empty := &Table{Columns: []string{"Input.a"}}
	assert.Empty(t, empty.FieldNames())
}

func TestNewResolver_CountMismatch(t *testing.T) {
	t.Parallel()

	_, err := NewResolver("demo", sampleTable(), 3)
	require.Error(t, err)

	var ie *IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "demo", ie.Task)
	assert.Equal(t, -1, ie.InstanceIndex)
}

func TestLabels_MultiAnnotator(t *testing.T) {
	t.Parallel()

	r, err := NewResolver("demo", sampleTable(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.InstanceCount())

	got, err := r.Labels(0, []string{"rating", "comment"})
	require.NoError(t, err)

	want := AnswerSet{
		"rating":  {"4", "5"},
		"comment": {"looks right", "agree"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("answer set mismatch (-want +got):\n%s", diff)
	}
}

func TestLabels_SingleAnnotatorInstance(t *testing.T) {
	t.Parallel()

	r, err := NewResolver("demo", sampleTable(), 2)
	require.NoError(t, err)

	got, err := r.Labels(1, []string{"rating"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, got["rating"])
}

func TestLabels_AbsentColumn(t *testing.T) {
	t.Parallel()

	r, err := NewResolver("demo", sampleTable(), 2)
	require.NoError(t, err)

	// A field that exists on the page but not in the batch reads as an
	// empty reference sequence.
	got, err := r.Labels(0, []string{"missing_field"})
	require.NoError(t, err)
	assert.Empty(t, got["missing_field"])
}

func TestLabels_OutOfRange(t *testing.T) {
	t.Parallel()

	r, err := NewResolver("demo", sampleTable(), 2)
	require.NoError(t, err)

	var ie *IntegrityError
	_, err = r.Labels(2, nil)
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 2, ie.InstanceIndex)

	_, err = r.Labels(-1, nil)
	require.Error(t, err)
}

func TestInputKey_NoCollisions(t *testing.T) {
	t.Parallel()

	// "ab"+"c" and "a"+"bc" must dedupe to distinct instances.
	table := &Table{
		Columns: []string{"Input.a", "Input.b", "Answer.x"},
		Rows: [][]string{
			{"ab", "c", "1"},
			{"a", "bc", "2"},
		},
	}
	r, err := NewResolver("demo", table, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.InstanceCount())
}

func TestResolver_RaggedRows(t *testing.T) {
	t.Parallel()

	table := &Table{
		Columns: []string{"Input.a", "Answer.x"},
		Rows: [][]string{
			{"p", "yes"},
			{"q"}, // missing answer cell reads as empty
		},
	}
	r, err := NewResolver("demo", table, 2)
	require.NoError(t, err)

	got, err := r.Labels(1, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{""}, got["x"])
}
