package dataset

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DelimitedReader reads delimiter-separated records from the local file of
// one input.
type DelimitedReader struct {
	// Input is the dependency key of the file to read. Empty means the
	// instance's only input.
	Input string
	// Delimiter defaults to a tab.
	Delimiter rune
	// Gzip decompresses the file while reading.
	Gzip bool
	// Columns names the fields. When empty the first line is the header;
	// a leading '#' on it is ignored.
	Columns []string
	// Comment, when set, skips lines starting with it.
	Comment rune
}

// Read implements Reader.
func (d DelimitedReader) Read(ctx context.Context, env *Env, inst *Instance, yield func(Row) error) error {
	in, err := d.input(inst)
	if err != nil {
		return err
	}
	path, err := LocationOf(env, in)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var src io.Reader = bufio.NewReader(f)
	if d.Gzip {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		defer gz.Close()
		src = gz
	}
	return d.read(ctx, src, yield)
}

func (d DelimitedReader) input(inst *Instance) (*Instance, error) {
	if d.Input == "" {
		return inst.Sole()
	}
	in, ok := inst.Input(d.Input)
	if !ok {
		return nil, NewMalformedError(inst.TypeName(), "reader references unknown input %q", d.Input)
	}
	return in, nil
}

func (d DelimitedReader) read(ctx context.Context, src io.Reader, yield func(Row) error) error {
	r := csv.NewReader(src)
	r.Comma = '\t'
	if d.Delimiter != 0 {
		r.Comma = d.Delimiter
	}
	r.Comment = d.Comment
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	columns := d.Columns
	if len(columns) == 0 {
		header, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		columns = make([]string, len(header))
		for i, h := range header {
			columns[i] = strings.TrimSpace(h)
		}
		columns[0] = strings.TrimSpace(strings.TrimPrefix(columns[0], "#"))
	}

	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		line++
		if len(rec) != len(columns) {
			return fmt.Errorf("record %d has %d fields, expected %d", line, len(rec), len(columns))
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			row[c] = rec[i]
		}
		if err := yield(row); err != nil {
			return err
		}
	}
}
