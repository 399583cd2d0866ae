package health

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacquerai/cortex/internal/dataset"
)

// hundredRows mirrors a typical customer extract: a near-unique id, a
// partially missing numeric column, a constant column and one duplicate row.
func hundredRows() *dataset.Dataset {
	ids := make([]dataset.Value, 100)
	ages := make([]dataset.Value, 100)
	country := make([]dataset.Value, 100)
	for i := 0; i < 100; i++ {
		ids[i] = dataset.Number(float64(i))
		ages[i] = dataset.Number(float64(20 + i%30))
		if i%10 == 0 {
			ages[i] = dataset.Null()
		}
		country[i] = dataset.Text("NO")
	}
	// row 99 repeats row 98
	ids[99] = ids[98]
	ages[99] = ages[98]

	return dataset.MustNew(
		&dataset.Column{Name: "id", Values: ids},
		&dataset.Column{Name: "age", Values: ages},
		&dataset.Column{Name: "country", Values: country},
	)
}

func TestAnalyze(t *testing.T) {
	report := Analyze(hundredRows())

	assert.Equal(t, []Missing{{Column: "age", Count: 10, Percent: 10.0}}, report.Missing)
	assert.Equal(t, Duplicates{TotalRows: 100, DuplicateRows: 1, DuplicatePercent: 1.0}, report.Duplicates)

	require.Len(t, report.Cardinality, 3)
	assert.Equal(t, Cardinality{Column: "id", Unique: 99, Flag: FlagHighPotentialID}, report.Cardinality[0])
	assert.Equal(t, FlagLowMedium, report.Cardinality[1].Flag)
	assert.Equal(t, Cardinality{Column: "country", Unique: 1, Flag: FlagLowMedium}, report.Cardinality[2])
}

func TestMissingPercentRounding(t *testing.T) {
	d := dataset.MustNew(&dataset.Column{Name: "x", Values: []dataset.Value{
		dataset.Null(), dataset.Number(1), dataset.Number(2),
	}})
	report := Analyze(d)
	require.Len(t, report.Missing, 1)
	assert.Equal(t, 33.33, report.Missing[0].Percent)
	assert.Equal(t, 33.33, report.MissingPercent("x"))
	assert.Equal(t, 0.0, report.MissingPercent("y"))
}

func TestAppendingACopyAddsOneDuplicate(t *testing.T) {
	base := hundredRows()
	before := CountDuplicates(base)

	for _, row := range []int{0, 10, 57} {
		t.Run(fmt.Sprintf("row_%d", row), func(t *testing.T) {
			cols := make([]*dataset.Column, 0, base.Width())
			values := base.Row(row)
			for i, name := range base.Columns() {
				c, _ := base.Column(name)
				cells := append(append([]dataset.Value{}, c.Values...), values[i])
				cols = append(cols, &dataset.Column{Name: name, Type: c.Type, Values: cells})
			}
			extended := dataset.MustNew(cols...)
			assert.Equal(t, before+1, CountDuplicates(extended))
		})
	}
}

func TestNullsCompareEqualForDuplicates(t *testing.T) {
	d := dataset.MustNew(
		&dataset.Column{Name: "a", Values: []dataset.Value{dataset.Null(), dataset.Null()}},
		&dataset.Column{Name: "b", Values: []dataset.Value{dataset.Text("x"), dataset.Text("x")}},
	)
	assert.Equal(t, 1, CountDuplicates(d))
}

func TestAnalyzeEmptyDataset(t *testing.T) {
	d := dataset.MustNew(&dataset.Column{Name: "a", Type: dataset.TypeText, Values: []dataset.Value{}})
	report := Analyze(d)

	assert.Empty(t, report.Missing)
	assert.NotNil(t, report.Missing)
	assert.Equal(t, 0.0, report.Duplicates.DuplicatePercent)
	assert.Equal(t, []Cardinality{{Column: "a", Unique: 0, Flag: FlagLowMedium}}, report.Cardinality)
}

func TestAnalyzeRecoversToEmpty(t *testing.T) {
	report := Analyze(nil)
	assert.Equal(t, Empty(), report)
}

func TestSeparatorInCellsDoesNotCollide(t *testing.T) {
	d := dataset.MustNew(
		&dataset.Column{Name: "a", Type: dataset.TypeText, Values: []dataset.Value{dataset.Text("a\x1fs:b"), dataset.Text("a")}},
		&dataset.Column{Name: "b", Type: dataset.TypeText, Values: []dataset.Value{dataset.Text("c"), dataset.Text("b\x1fs:c")}},
	)
	assert.Zero(t, CountDuplicates(d))
}
