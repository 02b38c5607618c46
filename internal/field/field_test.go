package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind_Table(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		tag      string
		typeAttr string
		want     Kind
		wantErr  bool
	}{
		{name: "textarea", tag: "textarea", want: KindTextarea},
		{name: "select", tag: "select", want: KindSelect},
		{name: "plain_input", tag: "input", typeAttr: "text", want: KindText},
		{name: "empty_type_defaults_to_text", tag: "input", want: KindText},
		{name: "radio", tag: "input", typeAttr: "radio", want: KindRadio},
		{name: "checkbox", tag: "input", typeAttr: "checkbox", want: KindCheckbox},
		{name: "datetime_local", tag: "input", typeAttr: "datetime-local", want: KindDatetimeLocal},
		{name: "unknown_type", tag: "input", typeAttr: "submit", wantErr: true},
		{name: "unknown_tag", tag: "div", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseKind(tc.tag, tc.typeAttr)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestKindPredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, KindRadio.IsChoice())
	assert.True(t, KindSelect.IsChoice())
	assert.True(t, KindCheckbox.IsChoice())
	assert.False(t, KindText.IsChoice())

	assert.True(t, KindRange.IsValid())
	assert.False(t, Kind("submit").IsValid())
}

func TestExclusionSet(t *testing.T) {
	t.Parallel()

	defaults := NewExclusionSet(nil)
	assert.True(t, defaults.Excluded("csrfmiddlewaretoken"))
	assert.True(t, defaults.Excluded("worker_ip"))
	assert.False(t, defaults.Excluded("comment"))

	custom := NewExclusionSet([]string{"internal_id"})
	assert.True(t, custom.Excluded("internal_id"))
	assert.False(t, custom.Excluded("csrfmiddlewaretoken"))
}
