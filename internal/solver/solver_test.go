package solver

import (
	"context"
	"testing"

	"formeval/internal/field"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingActions captures solver actions without a browser.
type recordingActions struct {
	setValues map[string]string
	checked   map[string][]string
}

func newRecordingActions() *recordingActions {
	return &recordingActions{
		setValues: make(map[string]string),
		checked:   make(map[string][]string),
	}
}

func (a *recordingActions) SetValue(_ context.Context, name, value string) error {
	a.setValues[name] = value
	return nil
}

func (a *recordingActions) Check(_ context.Context, name, value string) error {
	a.checked[name] = append(a.checked[name], value)
	return nil
}

func TestNew_UnknownSolver(t *testing.T) {
	t.Parallel()

	_, err := New("llm", nil, 0)
	require.Error(t, err)
}

func TestOracle_Text(t *testing.T) {
	t.Parallel()

	acts := newRecordingActions()
	s, err := New("oracle", acts, 0)
	require.NoError(t, err)

	rec := field.Record{Name: "comment", Kind: field.KindText}
	require.NoError(t, s.Solve(context.Background(), rec, []string{"", "a fine answer"}))
	assert.Equal(t, "a fine answer", acts.setValues["comment"])
}

func TestOracle_EmptyGoldLeavesFieldAlone(t *testing.T) {
	t.Parallel()

	acts := newRecordingActions()
	s, _ := New("oracle", acts, 0)

	rec := field.Record{Name: "comment", Kind: field.KindText}
	require.NoError(t, s.Solve(context.Background(), rec, nil))
	require.NoError(t, s.Solve(context.Background(), rec, []string{""}))
	assert.Empty(t, acts.setValues)
	assert.Empty(t, acts.checked)
}

func TestOracle_RadioUsesMajority(t *testing.T) {
	t.Parallel()

	acts := newRecordingActions()
	s, _ := New("oracle", acts, 0)

	rec := field.Record{Name: "rating", Kind: field.KindRadio}
	require.NoError(t, s.Solve(context.Background(), rec, []string{"b", "a", "b"}))
	assert.Equal(t, []string{"b"}, acts.checked["rating"])
}

func TestOracle_CheckboxChecksEachOption(t *testing.T) {
	t.Parallel()

	acts := newRecordingActions()
	s, _ := New("oracle", acts, 0)

	rec := field.Record{Name: "topics", Kind: field.KindCheckbox}
	require.NoError(t, s.Solve(context.Background(), rec, []string{"news|sports"}))
	assert.Equal(t, []string{"news", "sports"}, acts.checked["topics"])
}

func TestRandom_Deterministic(t *testing.T) {
	t.Parallel()

	rec := field.Record{
		Name:    "rating",
		Kind:    field.KindRadio,
		Options: []string{"1", "2", "3", "4", "5"},
	}

	acts1 := newRecordingActions()
	s1, _ := New("random", acts1, 42)
	require.NoError(t, s1.Solve(context.Background(), rec, nil))

	acts2 := newRecordingActions()
	s2, _ := New("random", acts2, 42)
	require.NoError(t, s2.Solve(context.Background(), rec, nil))

	assert.Equal(t, acts1.checked, acts2.checked)
	require.Len(t, acts1.checked["rating"], 1)
}

func TestRandom_FreeTextDoesNothing(t *testing.T) {
	t.Parallel()

	acts := newRecordingActions()
	s, _ := New("random", acts, 1)

	rec := field.Record{Name: "comment", Kind: field.KindTextarea}
	require.NoError(t, s.Solve(context.Background(), rec, nil))
	assert.Empty(t, acts.setValues)
}
