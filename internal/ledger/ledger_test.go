package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seeqbio/cabin/internal/formula"
	"github.com/seeqbio/cabin/internal/store"
)

func createTestLedger(t *testing.T, opts ...Option) (*Ledger, *store.Store) {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, opts...), s
}

func tableRecord(typ, version string) Record {
	f := formula.Leaf(typ, version)
	sig := formula.Signature(f)
	name := typ + "::" + version + "::" + sig
	return Record{
		Signature:   sig,
		Type:        typ,
		Name:        name,
		StorageName: name,
		StorageKind: StorageTable,
		Formula:     string(formula.MustMarshalCanonical(f)),
		Producer:    "test",
	}
}

// insertWithTable creates the record's table and inserts the row in one transaction.
func insertWithTable(t *testing.T, l *Ledger, rec Record) {
	t.Helper()
	ctx := context.Background()
	err := l.Store().Transaction(ctx, func(tx *store.Tx) error {
		if err := tx.CreateTable(ctx, rec.StorageName, "CREATE TABLE "+store.QuoteIdent(rec.StorageName)+" (a TEXT)"); err != nil {
			return err
		}
		return l.Insert(ctx, tx, rec)
	})
	require.NoError(t, err)
}

func TestRecord_Validate(t *testing.T) {
	require.NoError(t, tableRecord("T", "1").Validate())

	missing := []func(*Record){
		func(r *Record) { r.Signature = "" },
		func(r *Record) { r.Type = "" },
		func(r *Record) { r.Name = "" },
		func(r *Record) { r.StorageName = "" },
		func(r *Record) { r.StorageKind = "" },
		func(r *Record) { r.Formula = "" },
	}
	for i, mutate := range missing {
		rec := tableRecord("T", "1")
		mutate(&rec)
		assert.Error(t, rec.Validate(), "case %d", i)
	}
}

func TestRecord_ParseFormula(t *testing.T) {
	rec := tableRecord("T", "1")
	f, err := rec.ParseFormula()
	require.NoError(t, err)
	assert.Equal(t, rec.Signature, f.Signature())

	rec.Formula = "not json"
	_, err = rec.ParseFormula()
	assert.Error(t, err)
}

func TestInsert_ExistsAndGet(t *testing.T) {
	ctx := context.Background()
	l, _ := createTestLedger(t)
	rec := tableRecord("GeneInfo", "2020")

	exists, err := l.ExistsBySignature(ctx, rec.Signature)
	require.NoError(t, err)
	assert.False(t, exists)

	insertWithTable(t, l, rec)

	exists, err = l.ExistsBySignature(ctx, rec.Signature)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := l.Get(ctx, rec.Name)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	got, err = l.GetBySignature(ctx, rec.Signature)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestInsert_DuplicateSignature(t *testing.T) {
	ctx := context.Background()
	l, _ := createTestLedger(t)
	rec := tableRecord("GeneInfo", "2020")

	require.NoError(t, l.Register(ctx, rec))
	err := l.Register(ctx, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	all, err := l.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInsert_RolledBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	l, s := createTestLedger(t)
	rec := tableRecord("GeneInfo", "2020")
	boom := errors.New("import failed")

	err := s.Transaction(ctx, func(tx *store.Tx) error {
		if err := tx.CreateTable(ctx, rec.StorageName, "CREATE TABLE "+store.QuoteIdent(rec.StorageName)+" (a TEXT)"); err != nil {
			return err
		}
		if err := l.Insert(ctx, tx, rec); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	exists, err := l.ExistsBySignature(ctx, rec.Signature)
	require.NoError(t, err)
	assert.False(t, exists)

	tableExists, err := s.TableExists(ctx, rec.StorageName)
	require.NoError(t, err)
	assert.False(t, tableExists)
}

func TestInsert_InvalidRecord(t *testing.T) {
	ctx := context.Background()
	l, _ := createTestLedger(t)
	rec := tableRecord("T", "1")
	rec.Formula = ""
	assert.Error(t, l.Register(ctx, rec))
}

func TestGet_NotFound(t *testing.T) {
	ctx := context.Background()
	l, _ := createTestLedger(t)

	_, err := l.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.GetBySignature(ctx, "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAll_OrderedByName(t *testing.T) {
	ctx := context.Background()
	l, _ := createTestLedger(t)

	for _, typ := range []string{"Zeta", "Alpha", "Mid"} {
		require.NoError(t, l.Register(ctx, tableRecord(typ, "1")))
	}

	all, err := l.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Alpha", all[0].Type)
	assert.Equal(t, "Mid", all[1].Type)
	assert.Equal(t, "Zeta", all[2].Type)

	byType, err := l.ByType(ctx, "Mid")
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "Mid", byType[0].Type)
}

func TestDeleteByName_DropsTableAndRow(t *testing.T) {
	ctx := context.Background()
	l, s := createTestLedger(t)
	rec := tableRecord("GeneInfo", "2020")
	insertWithTable(t, l, rec)

	require.NoError(t, l.DeleteByName(ctx, rec.Name))

	exists, err := l.ExistsBySignature(ctx, rec.Signature)
	require.NoError(t, err)
	assert.False(t, exists)

	tableExists, err := s.TableExists(ctx, rec.StorageName)
	require.NoError(t, err)
	assert.False(t, tableExists)
}

func TestDeleteByName_NotFound(t *testing.T) {
	l, _ := createTestLedger(t)
	assert.ErrorIs(t, l.DeleteByName(context.Background(), "missing"), ErrNotFound)
}

func TestDeleteByName_FileDropper(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	l, _ := createTestLedger(t, WithDropper(StorageFile, func(ctx context.Context, tx *store.Tx, rec Record) error {
		return os.Remove(rec.StorageName)
	}))

	rec := tableRecord("File", "1")
	rec.StorageKind = StorageFile
	rec.StorageName = path
	require.NoError(t, l.Register(ctx, rec))

	require.NoError(t, l.DeleteByName(ctx, rec.Name))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteByName_DropperFailureKeepsRow(t *testing.T) {
	ctx := context.Background()
	l, _ := createTestLedger(t, WithDropper(StorageMirror, func(ctx context.Context, tx *store.Tx, rec Record) error {
		return errors.New("mirror unreachable")
	}))

	rec := tableRecord("Mirror", "1")
	rec.StorageKind = StorageMirror
	require.NoError(t, l.Register(ctx, rec))

	err := l.DeleteByName(ctx, rec.Name)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror unreachable")

	exists, err := l.ExistsBySignature(ctx, rec.Signature)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteByName_UnknownStorageKind(t *testing.T) {
	ctx := context.Background()
	l, _ := createTestLedger(t)

	rec := tableRecord("Odd", "1")
	rec.StorageKind = "carrier-pigeon"
	require.NoError(t, l.Register(ctx, rec))

	err := l.DeleteByName(ctx, rec.Name)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dropper")
}

func TestDiscard_TolerantOfMissingRow(t *testing.T) {
	ctx := context.Background()
	l, s := createTestLedger(t)
	rec := tableRecord("Partial", "1")

	// a table exists without its ledger row
	_, err := s.DB().Exec("CREATE TABLE " + store.QuoteIdent(rec.StorageName) + " (a TEXT)")
	require.NoError(t, err)

	require.NoError(t, l.Discard(ctx, rec))

	tableExists, err := s.TableExists(ctx, rec.StorageName)
	require.NoError(t, err)
	assert.False(t, tableExists)

	// nothing left at all: still fine
	require.NoError(t, l.Discard(ctx, rec))
}
