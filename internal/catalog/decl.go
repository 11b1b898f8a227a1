package catalog

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/seeqbio/cabin/internal/dataset"
)

// decl mirrors #Dataset.
type decl struct {
	Kind    string            `json:"kind"`
	Version string            `json:"version"`
	Depends []string          `json:"depends"`
	Inputs  map[string]string `json:"inputs"`
	Tags    []string          `json:"tags"`

	URL     string `json:"url"`
	Probe   bool   `json:"probe"`
	ModTime bool   `json:"modtime"`
	Layout  string `json:"layout"`

	Extension string `json:"extension"`
	Prefix    string `json:"prefix"`

	Schema    string              `json:"schema"`
	MinRows   int64               `json:"min_rows"`
	Query     string              `json:"query"`
	Columns   []string            `json:"columns"`
	Fields    map[string]string   `json:"fields"`
	Input     string              `json:"input"`
	Delimiter string              `json:"delimiter"`
	Gzip      bool                `json:"gzip"`
	Header    *bool               `json:"header"`
	Rows      []map[string]string `json:"rows"`
}

type fieldError struct {
	field string
	msg   string
}

func fail(field, format string, args ...any) *fieldError {
	return &fieldError{field: field, msg: fmt.Sprintf(format, args...)}
}

// node builds the node for the declared kind.
func (d decl) node() (dataset.Node, dataset.Kind, *fieldError) {
	switch d.Kind {
	case "external":
		if d.URL == "" {
			return nil, "", fail("url", "external datasets need a url")
		}
		if d.ModTime {
			return dataset.External{Source: dataset.ModTimeURL{Template: d.URL, Layout: d.Layout}}, dataset.KindExternal, nil
		}
		return dataset.External{Source: dataset.StaticURL{Template: d.URL, Probe: d.Probe}}, dataset.KindExternal, nil
	case "file":
		return dataset.LocalFile{Extension: d.Extension}, dataset.KindFile, nil
	case "mirrored_file":
		return dataset.MirroredFile{Extension: d.Extension}, dataset.KindFile, nil
	case "mirror":
		return dataset.Mirror{Prefix: d.Prefix, Extension: d.Extension}, dataset.KindMirror, nil
	case "table":
		return d.table()
	default:
		return nil, "", fail("kind", "kind %q cannot be declared in a catalog", d.Kind)
	}
}

func (d decl) table() (dataset.Node, dataset.Kind, *fieldError) {
	if d.Schema == "" {
		return nil, "", fail("schema", "tables need a schema")
	}
	t := dataset.Table{Schema: d.Schema, MinRows: d.MinRows}

	switch {
	case d.Query != "" && len(d.Columns) > 0:
		return nil, "", fail("query", "query and columns are mutually exclusive")
	case d.Query != "":
		t.Importer = dataset.SQLImporter{Query: d.Query}
	case len(d.Columns) > 0:
		reader, ferr := d.reader()
		if ferr != nil {
			return nil, "", ferr
		}
		t.Importer = dataset.RecordImporter{Columns: d.Columns, FieldMappings: d.Fields, Reader: reader}
	}
	return t, dataset.KindTable, nil
}

func (d decl) reader() (dataset.Reader, *fieldError) {
	if len(d.Rows) > 0 {
		rows := make(dataset.StaticRecords, len(d.Rows))
		for i, r := range d.Rows {
			rows[i] = dataset.Row(r)
		}
		return rows, nil
	}

	r := dataset.DelimitedReader{Input: d.Input, Gzip: d.Gzip}
	if d.Delimiter != "" {
		if utf8.RuneCountInString(d.Delimiter) != 1 {
			return nil, fail("delimiter", "delimiter must be a single character, got %q", d.Delimiter)
		}
		r.Delimiter, _ = utf8.DecodeRuneInString(d.Delimiter)
	}
	if d.Header != nil && !*d.Header {
		r.Columns = d.Columns
	}
	return r, nil
}

// dependencies resolves depends and inputs. depends keeps declared order;
// inputs follow sorted by key.
func (d decl) dependencies(resolve func(string) (*dataset.Type, bool)) ([]dataset.Dependency, error) {
	var deps []dataset.Dependency
	for _, name := range d.Depends {
		t, ok := resolve(name)
		if !ok {
			return nil, fmt.Errorf("unknown dependency %q", name)
		}
		deps = append(deps, dataset.On(t))
	}
	keys := make([]string, 0, len(d.Inputs))
	for k := range d.Inputs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, key := range keys {
		t, ok := resolve(d.Inputs[key])
		if !ok {
			return nil, fmt.Errorf("unknown dependency %q", d.Inputs[key])
		}
		deps = append(deps, dataset.Dependency{Key: key, Type: t})
	}
	return deps, nil
}

// checkArity enforces the dependency count each kind needs.
func (d decl) checkArity(n int) error {
	switch d.Kind {
	case "external":
		if n != 0 {
			return fmt.Errorf("external datasets cannot have dependencies")
		}
	case "file", "mirror", "mirrored_file":
		if n != 1 {
			return fmt.Errorf("%s datasets need exactly one dependency, have %d", d.Kind, n)
		}
	}
	return nil
}
