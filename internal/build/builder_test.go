package build

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/testutil"
)

type nodes struct {
	log                    *testutil.CallLog
	leaf, left, right, top *testutil.Node
	types                  map[string]*dataset.Type
}

// diamond declares Leaf <- Left, Right <- Top with recording nodes.
func diamond() nodes {
	log := &testutil.CallLog{}
	n := nodes{
		log:   log,
		leaf:  &testutil.Node{Log: log},
		left:  &testutil.Node{Log: log},
		right: &testutil.Node{Log: log},
		top:   &testutil.Node{Log: log},
	}
	leaf := &dataset.Type{Name: "Leaf", Version: "1", Node: n.leaf}
	left := &dataset.Type{Name: "Left", Version: "1", Node: n.left, Depends: []dataset.Dependency{dataset.On(leaf)}}
	right := &dataset.Type{Name: "Right", Version: "1", Node: n.right, Depends: []dataset.Dependency{dataset.On(leaf)}}
	top := &dataset.Type{Name: "Top", Version: "1", Node: n.top, Depends: []dataset.Dependency{dataset.On(left), dataset.On(right)}}
	n.types = map[string]*dataset.Type{"Leaf": leaf, "Left": left, "Right": right, "Top": top}
	return n
}

func TestBuild_BottomUp(t *testing.T) {
	fx := testutil.NewFixture(t)
	n := diamond()
	top := dataset.MustNew(n.types["Top"])

	report, err := New(fx.Env).Build(context.Background(), top)
	require.NoError(t, err)

	assert.Equal(t, []string{"Leaf", "Left", "Right", "Top"}, report.Types(ActionProduced))
	assert.Equal(t, []string{
		"produce Leaf", "check Leaf",
		"produce Left", "check Left",
		"produce Right", "check Right",
		"produce Top", "check Top",
	}, n.log.Calls())
}

func TestBuild_Idempotent(t *testing.T) {
	fx := testutil.NewFixture(t)
	n := diamond()
	top := dataset.MustNew(n.types["Top"])
	b := New(fx.Env)

	_, err := b.Build(context.Background(), top)
	require.NoError(t, err)
	calls := len(n.log.Calls())

	report, err := b.Build(context.Background(), top)
	require.NoError(t, err)
	assert.Len(t, n.log.Calls(), calls, "second build must not produce anything")
	assert.Equal(t, []string{"Top"}, report.Types(ActionSatisfied))
}

func TestBuild_ExistingShortCircuits(t *testing.T) {
	fx := testutil.NewFixture(t)
	n := diamond()
	left := dataset.MustNew(n.types["Left"])
	_, err := New(fx.Env).Build(context.Background(), left)
	require.NoError(t, err)

	report, err := New(fx.Env).Build(context.Background(), dataset.MustNew(n.types["Top"]))
	require.NoError(t, err)
	assert.Equal(t, []string{"Left", "Leaf"}, report.Types(ActionSatisfied))
	assert.Equal(t, []string{"Right", "Top"}, report.Types(ActionProduced))
}

func TestBuild_FailureCleansUp(t *testing.T) {
	fx := testutil.NewFixture(t)
	n := diamond()
	n.right.ProduceErr = errors.New("disk full")
	top := dataset.MustNew(n.types["Top"])
	right, _ := top.Input("Right")

	report, err := New(fx.Env).Build(context.Background(), top)
	require.Error(t, err)
	assert.True(t, dataset.IsProductionFailed(err))
	assert.ErrorContains(t, err, "disk full")

	failed := report.Failed()
	require.NotNil(t, failed)
	assert.Equal(t, right.Name(), failed.Name)

	assert.False(t, n.right.Produced(right), "failed instance must not exist after cleanup")
	assert.Contains(t, n.log.Calls(), "cleanup Right")
	assert.NotContains(t, n.log.Calls(), "produce Top")

	// Dependency failures reach the caller unchanged.
	var domainErr *dataset.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, right.Name(), domainErr.Dataset)
}

func TestBuild_CheckFailureCleansUp(t *testing.T) {
	fx := testutil.NewFixture(t)
	n := diamond()
	n.leaf.CheckErr = errors.New("too few rows")
	leaf := dataset.MustNew(n.types["Leaf"])

	_, err := New(fx.Env).Build(context.Background(), leaf)
	require.Error(t, err)
	assert.True(t, dataset.IsProductionFailed(err))
	assert.ErrorContains(t, err, "check failed")
	assert.False(t, n.leaf.Produced(leaf))
}

func TestBuild_KeepsDomainCode(t *testing.T) {
	fx := testutil.NewFixture(t)
	src := &dataset.Type{Name: "Upstream", Version: "2024-01-01", Kind: dataset.KindExternal,
		Node: dataset.External{Source: dataset.ModTimeURL{Template: "https://example.org/data"}}}
	fx.Fetcher.Set("https://example.org/data", []byte("x"), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	file := &dataset.Type{Name: "Data", Version: "1", Kind: dataset.KindFile,
		Depends: []dataset.Dependency{dataset.On(src)}, Node: dataset.LocalFile{}}

	_, err := New(fx.Env).Build(context.Background(), dataset.MustNew(file))
	require.Error(t, err)
	assert.True(t, dataset.IsExternalUnavailable(err))
	assert.Empty(t, fx.Fetcher.Fetched())
}

func TestBuild_UnreachableExternal(t *testing.T) {
	fx := testutil.NewFixture(t)
	src := &dataset.Type{Name: "Upstream", Version: "2024-01-01", Kind: dataset.KindExternal,
		Node: dataset.External{Source: dataset.ModTimeURL{Template: "https://example.org/gone"}}}
	file := &dataset.Type{Name: "Data", Version: "1", Kind: dataset.KindFile,
		Depends: []dataset.Dependency{dataset.On(src)}, Node: dataset.LocalFile{}}

	report, err := New(fx.Env).Build(context.Background(), dataset.MustNew(file))
	require.Error(t, err)
	assert.True(t, dataset.IsExternalUnavailable(err), "got %v", err)
	assert.False(t, dataset.IsProductionFailed(err))
	assert.Equal(t, []string{"Upstream", "Data"}, report.Types(ActionFailed))
	assert.Empty(t, fx.Fetcher.Fetched())
}

func TestBuild_CancelledContext(t *testing.T) {
	fx := testutil.NewFixture(t)
	n := diamond()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fx.Env).Build(ctx, dataset.MustNew(n.types["Leaf"]))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"cleanup Leaf"}, n.log.Calls())
}

func TestBuild_DryRun(t *testing.T) {
	fx := testutil.NewFixture(t)
	n := diamond()
	b := New(fx.Env, WithDryRun(true))
	require.True(t, b.DryRun())

	report, err := b.Build(context.Background(), dataset.MustNew(n.types["Top"]))
	require.NoError(t, err)
	assert.Equal(t, []string{"Leaf", "Left", "Right", "Top"}, report.Types(ActionPlanned))
	assert.Empty(t, n.log.Calls())
}

func TestBuildAll_SharesWork(t *testing.T) {
	fx := testutil.NewFixture(t)
	n := diamond()

	report, err := New(fx.Env).BuildAll(context.Background(), []*dataset.Instance{
		dataset.MustNew(n.types["Left"]),
		dataset.MustNew(n.types["Right"]),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Leaf", "Left", "Right"}, report.Types(ActionProduced))
	assert.Equal(t, 3, report.Count(ActionProduced))
}

func TestBuildAll_StopsAtFirstFailure(t *testing.T) {
	fx := testutil.NewFixture(t)
	n := diamond()
	n.left.ProduceErr = errors.New("boom")

	_, err := New(fx.Env).BuildAll(context.Background(), []*dataset.Instance{
		dataset.MustNew(n.types["Left"]),
		dataset.MustNew(n.types["Right"]),
	})
	require.Error(t, err)
	assert.NotContains(t, n.log.Calls(), "produce Right")
}

func TestBuild_TableChain(t *testing.T) {
	ctx := context.Background()
	fx := testutil.NewFixture(t)
	chain := testutil.NewChain("L1", "M1", "R1")
	root := dataset.MustNew(chain.Root)

	report, err := New(fx.Env).Build(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"Leaf", "Mid", "Root"}, report.Types(ActionProduced))
	assert.Len(t, fx.Names(t), 3)

	// Bumping Mid rebuilds Mid and Root on top of the existing Leaf.
	bumped := dataset.MustNew(testutil.NewChain("L1", "M2", "R1").Root)
	report, err = New(fx.Env).Build(ctx, bumped)
	require.NoError(t, err)
	assert.Equal(t, []string{"Leaf"}, report.Types(ActionSatisfied))
	assert.Equal(t, []string{"Mid", "Root"}, report.Types(ActionProduced))
	assert.Len(t, fx.Names(t), 5)
}

func TestBuild_FailedTableLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	fx := testutil.NewFixture(t)
	chain := testutil.NewChain("L1", "M1", "R1")
	chain.Mid.Node = dataset.Table{
		Schema:   "CREATE TABLE {table} (id INTEGER, label TEXT)",
		Importer: dataset.SQLImporter{Query: "INSERT INTO {table} SELECT id, label FROM {input:Leaf} WHERE 0"},
		MinRows:  1,
	}
	mid := dataset.MustNew(chain.Mid)

	_, err := New(fx.Env).Build(ctx, dataset.MustNew(chain.Root))
	require.Error(t, err)
	assert.True(t, dataset.IsProductionFailed(err))

	exists, err := fx.Store.TableExists(ctx, mid.Name())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Len(t, fx.Names(t), 1, "only Leaf survives")
}
