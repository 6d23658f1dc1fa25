package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "JSON": FormatJSON, " yaml ": FormatYAML, "tsv": FormatTSV} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestRenderTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Format: FormatTable})
	require.NoError(t, r.Render(nil, []string{"UNIT", "MIGRATED"}, [][]string{{"workitem", "12"}, {"comment", "3"}}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "UNIT      MIGRATED", lines[0])
	assert.Equal(t, "--------  --------", lines[1])
	assert.Equal(t, "workitem  12", lines[2])
	assert.Equal(t, "comment   3", lines[3])
}

func TestRenderEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, Options{}).RenderTable([]string{"A"}, nil))
	assert.Equal(t, "(none)\n", buf.String())
}

func TestRenderStructured(t *testing.T) {
	data := map[string]int{"migrated": 2}

	var js bytes.Buffer
	require.NoError(t, NewRenderer(&js, Options{Format: FormatJSON}).Render(data, nil, nil))
	assert.JSONEq(t, `{"migrated":2}`, js.String())

	var ym bytes.Buffer
	require.NoError(t, NewRenderer(&ym, Options{Format: FormatYAML}).Render(data, nil, nil))
	assert.Equal(t, "migrated: 2\n", ym.String())

	var tsv bytes.Buffer
	require.NoError(t, NewRenderer(&tsv, Options{Format: FormatTSV}).Render(data, []string{"a", "b"}, [][]string{{"1", "2"}}))
	assert.Equal(t, "a\tb\n1\t2\n", tsv.String())
}
