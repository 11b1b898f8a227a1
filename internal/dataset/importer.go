package dataset

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/seeqbio/cabin/internal/store"
)

// Importer fills a freshly created table inside the producing transaction.
type Importer interface {
	Import(ctx context.Context, env *Env, tx *store.Tx, inst *Instance, table string) error
}

// Row is one input record keyed by field name.
type Row map[string]string

// Reader streams the records of a table's input. Read calls yield once per
// record and stops at the first error yield returns.
type Reader interface {
	Read(ctx context.Context, env *Env, inst *Instance, yield func(Row) error) error
}

// RecordImporter inserts records one at a time through a prepared statement.
type RecordImporter struct {
	Columns []string
	// FieldMappings maps a column to the record field it is read from.
	// Unmapped columns read the field of the same name.
	FieldMappings map[string]string
	Reader        Reader
}

// Import implements Importer. Missing or empty fields are inserted as NULL.
func (r RecordImporter) Import(ctx context.Context, env *Env, tx *store.Tx, inst *Instance, table string) error {
	if len(r.Columns) == 0 {
		return NewMalformedError(inst.TypeName(), "record importer has no columns")
	}
	if r.Reader == nil {
		return NewMalformedError(inst.TypeName(), "record importer has no reader")
	}

	quoted := make([]string, len(r.Columns))
	marks := make([]string, len(r.Columns))
	fields := make([]string, len(r.Columns))
	for i, col := range r.Columns {
		quoted[i] = store.QuoteIdent(col)
		marks[i] = "?"
		fields[i] = col
		if f, ok := r.FieldMappings[col]; ok {
			fields[i] = f
		}
	}

	stmt, err := tx.Prepare(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		store.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	var count int64
	args := make([]any, len(fields))
	err = r.Reader.Read(ctx, env, inst, func(row Row) error {
		for i, f := range fields {
			if v, ok := row[f]; ok && v != "" {
				args[i] = v
			} else {
				args[i] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert record %d into %s: %w", count+1, table, err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	env.Log().Debug("inserted records", "table", table, "count", count)
	return nil
}

var inputPlaceholder = regexp.MustCompile(`\{input:([^}]+)\}`)

// SQLImporter derives a table from its inputs with a single SQL statement.
// In Query, {table} is the table being produced and {input:Key} is the
// location of the input with that dependency key, both quoted.
type SQLImporter struct {
	Query string
}

// Import implements Importer.
func (s SQLImporter) Import(ctx context.Context, env *Env, tx *store.Tx, inst *Instance, table string) error {
	query, err := s.Render(env, inst, table)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query); err != nil {
		return fmt.Errorf("populate %s: %w", table, err)
	}
	return nil
}

// Render expands the query template for inst.
func (s SQLImporter) Render(env *Env, inst *Instance, table string) (string, error) {
	var renderErr error
	query := inputPlaceholder.ReplaceAllStringFunc(s.Query, func(m string) string {
		key := inputPlaceholder.FindStringSubmatch(m)[1]
		in, ok := inst.Input(key)
		if !ok {
			renderErr = NewMalformedError(inst.TypeName(), "query references unknown input %q", key)
			return m
		}
		loc, err := LocationOf(env, in)
		if err != nil {
			renderErr = err
			return m
		}
		return store.QuoteIdent(loc)
	})
	if renderErr != nil {
		return "", renderErr
	}
	return strings.ReplaceAll(query, "{table}", store.QuoteIdent(table)), nil
}

// StaticRecords is a Reader over records held in memory.
type StaticRecords []Row

// Read implements Reader.
func (s StaticRecords) Read(ctx context.Context, env *Env, inst *Instance, yield func(Row) error) error {
	for _, row := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(row); err != nil {
			return err
		}
	}
	return nil
}
