package registry

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/testutil"
)

func typ(name string, kind dataset.Kind, deps ...*dataset.Type) *dataset.Type {
	t := &dataset.Type{Name: name, Version: "1", Kind: kind, Node: &testutil.Node{}}
	for _, d := range deps {
		t.Depends = append(t.Depends, dataset.On(d))
	}
	return t
}

func names(types []*dataset.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.Name
	}
	return out
}

// fixture: GenesFile <- GenesTable <- GenesSummary, VariantsTable (tagged)
func fixture(t *testing.T) (*Registry, map[string]*dataset.Type) {
	t.Helper()
	file := typ("GenesFile", dataset.KindFile)
	table := typ("GenesTable", dataset.KindTable, file)
	summary := typ("GenesSummary", dataset.KindTable, table)
	variants := typ("VariantsTable", dataset.KindTable)
	variants.Tags = []string{"active"}

	r := New()
	require.NoError(t, r.Register(file, table, summary, variants))
	return r, map[string]*dataset.Type{
		"GenesFile": file, "GenesTable": table, "GenesSummary": summary, "VariantsTable": variants,
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r, types := fixture(t)

	// Same pointer is a no-op.
	require.NoError(t, r.Register(types["GenesFile"]))
	assert.Equal(t, 4, r.Len())

	err := r.Register(typ("GenesFile", dataset.KindFile))
	require.Error(t, err)
	assert.True(t, dataset.IsMalformed(err))
}

func TestRegister_AtomicOnFailure(t *testing.T) {
	r := New()
	err := r.Register(typ("A", dataset.KindCustom), typ("B", dataset.KindCustom), typ("A", dataset.KindCustom))
	require.Error(t, err)
	assert.Equal(t, 0, r.Len())

	err = r.Register(typ("C", dataset.KindCustom), &dataset.Type{Name: "D"})
	require.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestMustRegister_Panics(t *testing.T) {
	r := New()
	assert.Panics(t, func() { r.MustRegister(&dataset.Type{Name: "NoVersion"}) })
}

func TestResolve(t *testing.T) {
	r, types := fixture(t)

	got, err := r.Resolve("GenesTable")
	require.NoError(t, err)
	assert.Same(t, types["GenesTable"], got)

	_, err = r.Resolve("Nope")
	require.Error(t, err)
	assert.True(t, dataset.IsUnknownType(err))
}

func TestMatch(t *testing.T) {
	r, _ := fixture(t)

	assert.Equal(t, []string{"GenesFile", "GenesSummary", "GenesTable"}, names(r.Match("Genes*", false)))
	assert.Equal(t, []string{"GenesSummary", "GenesTable"}, names(r.Match("Genes*", true)))
	assert.Equal(t, []string{"GenesSummary", "GenesTable", "VariantsTable"}, names(r.Match("*", true)))
	assert.Equal(t, []string{"GenesTable"}, names(r.Match("Genes?able", false)))
	assert.Empty(t, r.Match("[", false))
}

func TestMatchAll(t *testing.T) {
	r, _ := fixture(t)

	got, err := r.MatchAll([]string{"Variants*", "GenesT*", "*Table"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"GenesTable", "VariantsTable"}, names(got))

	_, err = r.MatchAll([]string{"Genes*", "Proteins*"}, false)
	require.Error(t, err)
	assert.True(t, dataset.IsUnknownType(err))
	assert.Contains(t, err.Error(), "Proteins*")
}

func TestTaggedAndDependents(t *testing.T) {
	r, types := fixture(t)

	assert.Equal(t, []string{"VariantsTable"}, names(r.Tagged("active")))
	assert.Equal(t, []string{"GenesTable"}, names(r.Dependents(types["GenesFile"])))
	assert.Empty(t, r.Dependents(types["GenesSummary"]))
}

func TestValidate(t *testing.T) {
	r, _ := fixture(t)
	require.NoError(t, r.Validate())

	orphan := typ("Orphan", dataset.KindTable, typ("Unregistered", dataset.KindFile))
	require.NoError(t, r.Register(orphan))
	err := r.Validate()
	require.Error(t, err)
	assert.True(t, dataset.IsMalformed(err))
	assert.Contains(t, err.Error(), "unregistered type \"Unregistered\"")
}

func TestValidate_Shadowed(t *testing.T) {
	r := New()
	base := typ("Base", dataset.KindFile)
	require.NoError(t, r.Register(base, typ("User", dataset.KindTable, typ("Base", dataset.KindFile))))

	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different type named \"Base\"")
}

func TestValidate_Cycle(t *testing.T) {
	a := typ("A", dataset.KindCustom)
	b := typ("B", dataset.KindCustom, a)
	c := typ("C", dataset.KindCustom, b)
	a.Depends = []dataset.Dependency{dataset.On(c)}

	r := New()
	require.NoError(t, r.Register(a, b, c))
	err := r.Validate()
	require.Error(t, err)
	assert.True(t, dataset.IsMalformed(err))
	assert.Contains(t, err.Error(), "dependency cycle: A -> C -> B -> A")
}

func TestReconstructCyclePath_TakesShortestRoute(t *testing.T) {
	graph := dependencyGraph{
		"A": {"B"},
		"B": {"C", "A"},
		"C": {"D"},
		"D": {"B"},
	}
	sccs := tarjanSCC(graph)
	require.Len(t, sccs, 1)
	assert.Equal(t, []string{"A", "B", "A"}, reconstructCyclePath(sccs[0], graph))
}

func TestInstance_Cached(t *testing.T) {
	r, _ := fixture(t)

	a, err := r.Instance("GenesSummary")
	require.NoError(t, err)
	b, err := r.Instance("GenesSummary")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = r.Instance("Nope")
	assert.True(t, dataset.IsUnknownType(err))
}

func TestInstance_Concurrent(t *testing.T) {
	r, _ := fixture(t)

	var wg sync.WaitGroup
	sigs := make([]string, 8)
	for i := range sigs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := r.Instance("GenesSummary")
			if err == nil {
				sigs[i] = inst.Signature()
			}
		}()
	}
	wg.Wait()
	for _, s := range sigs {
		assert.Equal(t, sigs[0], s)
		assert.NotEmpty(t, s)
	}
}

func TestGraph(t *testing.T) {
	r, _ := fixture(t)

	all := r.Graph(false)
	assert.Equal(t, []string{"GenesFile", "GenesSummary", "GenesTable", "VariantsTable"}, all.Nodes)
	assert.Equal(t, []Edge{{"GenesFile", "GenesTable"}, {"GenesTable", "GenesSummary"}}, all.Edges)

	tables := r.Graph(true)
	assert.Equal(t, []string{"GenesSummary", "GenesTable", "VariantsTable"}, tables.Nodes)
	assert.Equal(t, []Edge{{"GenesTable", "GenesSummary"}}, tables.Edges)

	focused := all.Focus([]string{"GenesTable"})
	assert.Equal(t, []string{"GenesFile", "GenesSummary", "GenesTable"}, focused.Nodes)
	assert.Len(t, focused.Edges, 2)
}

func TestWriteDOT(t *testing.T) {
	r, _ := fixture(t)
	g := r.Graph(true).Focus([]string{"GenesSummary"})

	var buf bytes.Buffer
	require.NoError(t, WriteDOT(&buf, g, []string{"GenesSummary"}))
	out := buf.String()
	assert.Contains(t, out, "digraph cabin {")
	assert.Contains(t, out, `"GenesSummary" [color="#0c97ae"];`)
	assert.Contains(t, out, `"GenesTable" [color="#dddddd"];`)
	assert.Contains(t, out, `"GenesTable" -> "GenesSummary";`)
	assert.NotContains(t, out, "VariantsTable")
}
