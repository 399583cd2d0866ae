package dataset

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	d, err := ReadCSV(strings.NewReader("name,age,score\nAlice,30,90\nBob,25,85"))
	require.NoError(t, err)

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 3, d.Width())
	assert.Equal(t, []string{"name", "age", "score"}, d.Columns())

	age, ok := d.Column("age")
	require.True(t, ok)
	assert.Equal(t, TypeNumeric, age.Type)
	assert.Equal(t, []float64{30, 25}, age.Floats())

	name, _ := d.Column("name")
	assert.Equal(t, TypeText, name.Type)
}

func TestReadCSVTrimsHeaders(t *testing.T) {
	d, err := ReadCSV(strings.NewReader(" a , b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, d.Columns())
}

func TestReadCSVNullsAndTypes(t *testing.T) {
	input := "n,when,label,blank\n1.5,2024-01-02,x,\nNA,,y,\n3,2024-02-03,null,\n"
	d, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	n, _ := d.Column("n")
	assert.Equal(t, TypeNumeric, n.Type)
	assert.Equal(t, 1, n.NullCount())

	when, _ := d.Column("when")
	assert.Equal(t, TypeDatetime, when.Type)
	assert.Equal(t, 1, when.NullCount())

	label, _ := d.Column("label")
	assert.Equal(t, TypeText, label.Type)
	assert.Equal(t, 1, label.NullCount())

	blank, _ := d.Column("blank")
	assert.Equal(t, TypeEmpty, blank.Type)
	assert.Equal(t, 3, blank.NullCount())
}

func TestReadCSVMixedColumnIsText(t *testing.T) {
	d, err := ReadCSV(strings.NewReader("v\n1\n2024-01-01\nabc\n"))
	require.NoError(t, err)

	v, _ := d.Column("v")
	assert.Equal(t, TypeText, v.Type)
	assert.Equal(t, "1", v.Values[0].String())
}

func TestReadCSVMalformed(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
		names  []string
	}{
		{name: "empty file", input: "", reason: ReasonEmpty},
		{name: "header only", input: "a,b,c\n", reason: ReasonEmpty},
		{name: "duplicate headers", input: "a,b,a,c,b\n1,2,3,4,5\n", reason: ReasonDuplicateColumns, names: []string{"a", "b"}},
		{name: "duplicate after trim", input: "a, a\n1,2\n", reason: ReasonDuplicateColumns, names: []string{"a"}},
		{name: "ragged rows", input: "a,b\n1,2\n3\n", reason: ReasonUnparseable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			require.Error(t, err)

			var malformed *MalformedInputError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.reason, malformed.Reason)
			assert.Equal(t, tt.names, malformed.Names)
		})
	}
}

func TestReadCSVHeadersAreCaseSensitive(t *testing.T) {
	d, err := ReadCSV(strings.NewReader("A,a\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Width())
}

func TestMalformedInputErrorMessage(t *testing.T) {
	err := &MalformedInputError{Reason: ReasonDuplicateColumns, Names: []string{"id", "age"}}
	assert.Equal(t, "Duplicate column names detected: [id, age]", err.Error())
	assert.Equal(t, "The uploaded dataset is empty.", (&MalformedInputError{Reason: ReasonEmpty}).Error())
}

func TestWriteCSVRoundTrip(t *testing.T) {
	input := "id,city,score\n1,Paris,1.5\n2,,\n3,Rome,4\n"
	d, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, d))
	assert.Equal(t, input, buf.String())
}
