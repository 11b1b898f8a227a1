package dataset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/formula"
	"github.com/seeqbio/cabin/internal/testutil"
)

func custom(name, version string, deps ...*dataset.Type) *dataset.Type {
	t := &dataset.Type{Name: name, Version: version, Kind: dataset.KindCustom, Node: &testutil.Node{}}
	for _, d := range deps {
		t.Depends = append(t.Depends, dataset.On(d))
	}
	return t
}

func TestType_Validate(t *testing.T) {
	require.NoError(t, custom("Gene.Info-v2", "1").Validate())

	leaf := custom("Leaf", "1")
	tests := []struct {
		name string
		typ  *dataset.Type
	}{
		{"empty name", custom("", "1")},
		{"name starting with digit", custom("1Gene", "1")},
		{"name with separator", custom("A::B", "1")},
		{"missing version", custom("A", "")},
		{"version with separator", custom("A", "1::2")},
		{"missing node", &dataset.Type{Name: "A", Version: "1"}},
		{"nil dependency", &dataset.Type{Name: "A", Version: "1", Node: &testutil.Node{}, Depends: []dataset.Dependency{{Key: "x"}}}},
		{"duplicate key", &dataset.Type{Name: "A", Version: "1", Node: &testutil.Node{}, Depends: []dataset.Dependency{
			{Key: "x", Type: leaf}, {Key: "x", Type: custom("Other", "1")},
		}}},
		{"bad key", &dataset.Type{Name: "A", Version: "1", Node: &testutil.Node{}, Depends: []dataset.Dependency{{Key: "a b", Type: leaf}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.typ.Validate()
			require.Error(t, err)
			assert.True(t, dataset.IsMalformed(err), "got %v", err)
		})
	}
}

func TestType_SelfDependency(t *testing.T) {
	a := custom("A", "1")
	a.Depends = []dataset.Dependency{dataset.On(a)}

	_, err := dataset.New(a)
	require.Error(t, err)
	assert.True(t, dataset.IsMalformed(err))
	assert.Contains(t, err.Error(), "depends on itself")
}

func TestNew_Cycle(t *testing.T) {
	a := custom("A", "1")
	b := custom("B", "1", a)
	a.Depends = []dataset.Dependency{dataset.On(b)}

	_, err := dataset.New(a)
	require.Error(t, err)
	assert.True(t, dataset.IsMalformed(err))
	assert.Contains(t, err.Error(), "dependency cycle: A -> B -> A")
}

func TestNew_LeafFormula(t *testing.T) {
	inst := dataset.MustNew(custom("Leaf", "2024-01-01"))

	assert.Equal(t, formula.Leaf("Leaf", "2024-01-01"), inst.Formula())
	assert.Equal(t, `{"inputs":{},"type":"Leaf","version":"2024-01-01"}`, inst.FormulaJSON())
	assert.Len(t, inst.Signature(), formula.SignatureLength)
	assert.True(t, inst.IsRoot())
	assert.Equal(t, "Leaf::2024-01-01::"+inst.Signature(), inst.Name())
}

func TestNew_NestedFormula(t *testing.T) {
	chain := testutil.NewChain("L1", "M1", "R1")
	root := dataset.MustNew(chain.Root)

	mid, ok := root.Input("Mid")
	require.True(t, ok)
	leaf, ok := mid.Input("Leaf")
	require.True(t, ok)

	assert.Equal(t, mid.Formula(), root.Formula().Inputs["Mid"])
	assert.Equal(t, leaf.Formula(), mid.Formula().Inputs["Leaf"])
	assert.Equal(t, formula.Signature(root.Formula()), root.Signature())
	assert.Equal(t, []string{"L1"}, root.RootVersions())
	assert.Equal(t, "Root::L1::"+root.Signature(), root.Name())
}

func TestNew_Deterministic(t *testing.T) {
	a := dataset.MustNew(testutil.NewChain("L1", "M1", "R1").Root)
	b := dataset.MustNew(testutil.NewChain("L1", "M1", "R1").Root)

	assert.Equal(t, a.Signature(), b.Signature())
	assert.Equal(t, a.Name(), b.Name())
	assert.True(t, a.Equal(b))
}

func TestNew_SensitiveToAncestorVersions(t *testing.T) {
	base := dataset.MustNew(testutil.NewChain("L1", "M1", "R1").Root)

	for _, c := range []testutil.Chain{
		testutil.NewChain("L2", "M1", "R1"),
		testutil.NewChain("L1", "M2", "R1"),
		testutil.NewChain("L1", "M1", "R2"),
	} {
		assert.NotEqual(t, base.Signature(), dataset.MustNew(c.Root).Signature())
	}
}

func TestNew_DiamondSharesInstance(t *testing.T) {
	leaf := custom("Leaf", "1")
	left := custom("Left", "1", leaf)
	right := custom("Right", "1", leaf)
	top := custom("Top", "1", left, right)

	inst := dataset.MustNew(top)
	l, _ := inst.Input("Left")
	r, _ := inst.Input("Right")
	ll, _ := l.Input("Leaf")
	rl, _ := r.Input("Leaf")
	assert.Same(t, ll, rl)

	var visited []string
	inst.Walk(func(i *dataset.Instance) { visited = append(visited, i.TypeName()) })
	assert.Equal(t, []string{"Leaf", "Left", "Right", "Top"}, visited)
}

func TestInstance_RootVersionsSortedByKey(t *testing.T) {
	genes := custom("Genes", "G7")
	variants := custom("Variants", "V3")
	extra := custom("Extra", "E1")
	top := &dataset.Type{Name: "Top", Version: "1", Node: &testutil.Node{}, Depends: []dataset.Dependency{
		{Key: "b", Type: genes},
		{Key: "a", Type: variants},
		{Key: "c", Type: extra},
	}}

	inst := dataset.MustNew(top)
	assert.Equal(t, []string{"V3", "G7", "E1"}, inst.RootVersions())
	assert.Equal(t, "Top::V3::G7::"+inst.Signature(), inst.Name())
	assert.Equal(t, []string{"b", "a", "c"}, inst.InputKeys())
}

func TestInstance_DependencyKeyRenamesInput(t *testing.T) {
	leaf := custom("Leaf", "1")
	a := &dataset.Type{Name: "A", Version: "1", Node: &testutil.Node{}, Depends: []dataset.Dependency{{Key: "source", Type: leaf}}}
	b := custom("A", "1", leaf)

	ia, ib := dataset.MustNew(a), dataset.MustNew(b)
	assert.NotEqual(t, ia.Signature(), ib.Signature())
	_, ok := ia.Input("source")
	assert.True(t, ok)
}

func TestInstance_Sole(t *testing.T) {
	_, err := dataset.MustNew(custom("Leaf", "1")).Sole()
	assert.Error(t, err)

	inst := dataset.MustNew(custom("A", "1", custom("Leaf", "1")))
	in, err := inst.Sole()
	require.NoError(t, err)
	assert.Equal(t, "Leaf", in.TypeName())
}

func TestFormatName(t *testing.T) {
	assert.Equal(t, "T::abc", dataset.FormatName("T", nil, "abc"))
	assert.Equal(t, "T::a::b::abc", dataset.FormatName("T", []string{"a", "b", "c"}, "abc"))
}
