package dataset_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/store"
	"github.com/seeqbio/cabin/internal/testutil"
)

func readAll(t *testing.T, fx *testutil.Fixture, inst *dataset.Instance, r dataset.DelimitedReader) ([]dataset.Row, error) {
	t.Helper()
	var rows []dataset.Row
	err := r.Read(context.Background(), fx.Env, inst, func(row dataset.Row) error {
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

func producedFile(t *testing.T, fx *testutil.Fixture, content []byte) *dataset.Instance {
	t.Helper()
	fx.Fetcher.Set(sourceURL, content, time.Now())
	_, file := fileChain()
	inst := dataset.MustNew(file)
	require.NoError(t, file.Node.Produce(context.Background(), fx.Env, inst))
	return inst
}

func TestDelimitedReader_HashHeader(t *testing.T) {
	fx := testutil.NewFixture(t)
	file := producedFile(t, fx, []byte("#tax_id\tGeneID\tSymbol\n9606\t7157\tTP53\n9606\t672\tBRCA1\n"))
	typ := &dataset.Type{Name: "T", Version: "1", Node: &testutil.Node{}, Depends: []dataset.Dependency{dataset.On(file.Type())}}

	rows, err := readAll(t, fx, dataset.MustNew(typ), dataset.DelimitedReader{})
	require.NoError(t, err)
	assert.Equal(t, []dataset.Row{
		{"tax_id": "9606", "GeneID": "7157", "Symbol": "TP53"},
		{"tax_id": "9606", "GeneID": "672", "Symbol": "BRCA1"},
	}, rows)
}

func TestDelimitedReader_GzipCSVWithColumns(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("a,1\nb,2\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	fx := testutil.NewFixture(t)
	file := producedFile(t, fx, buf.Bytes())
	typ := &dataset.Type{Name: "T", Version: "1", Node: &testutil.Node{}, Depends: []dataset.Dependency{{Key: "src", Type: file.Type()}}}

	rows, err := readAll(t, fx, dataset.MustNew(typ), dataset.DelimitedReader{
		Input: "src", Delimiter: ',', Gzip: true, Columns: []string{"name", "n"},
	})
	require.NoError(t, err)
	assert.Equal(t, []dataset.Row{{"name": "a", "n": "1"}, {"name": "b", "n": "2"}}, rows)
}

func TestDelimitedReader_FieldCountMismatch(t *testing.T) {
	fx := testutil.NewFixture(t)
	file := producedFile(t, fx, []byte("a\tb\n1\t2\n3\n"))
	typ := &dataset.Type{Name: "T", Version: "1", Node: &testutil.Node{}, Depends: []dataset.Dependency{dataset.On(file.Type())}}

	_, err := readAll(t, fx, dataset.MustNew(typ), dataset.DelimitedReader{})
	assert.ErrorContains(t, err, "record 2 has 1 fields, expected 2")
}

func TestDelimitedReader_IntoTable(t *testing.T) {
	ctx := context.Background()
	fx := testutil.NewFixture(t)
	file := producedFile(t, fx, []byte("id\tname\n1\tone\n2\ttwo\n3\tthree\n"))
	typ := &dataset.Type{
		Name: "Names", Version: "1", Kind: dataset.KindTable,
		Depends: []dataset.Dependency{dataset.On(file.Type())},
		Node: dataset.Table{
			Schema:   "CREATE TABLE {table} (id INTEGER, name TEXT)",
			Importer: dataset.RecordImporter{Columns: []string{"id", "name"}, Reader: dataset.DelimitedReader{}},
			MinRows:  3,
		},
	}
	inst := dataset.MustNew(typ)
	require.NoError(t, typ.Node.Produce(ctx, fx.Env, inst))
	require.NoError(t, typ.Node.(dataset.Checker).Check(ctx, fx.Env, inst))

	var name string
	require.NoError(t, fx.Store.QueryRow(ctx, "SELECT name FROM "+store.QuoteIdent(inst.Name())+" WHERE id = 2").Scan(&name))
	assert.Equal(t, "two", name)
}
