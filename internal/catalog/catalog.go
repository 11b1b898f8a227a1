// Package catalog compiles dataset types declared in CUE.
//
// A catalog is a directory of .cue files sharing one package. Every field
// under the top-level `dataset` struct declares one type:
//
//	dataset: GenesFile: {kind: "file", version: "1", depends: ["GenesSource"], extension: "tsv"}
//
// Entries are validated against the #Dataset schema, then compiled into
// dataset.Type values whose dependencies are resolved by name, first within
// the catalog and then against an optional base registry.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/registry"
)

//go:embed schema.cue
var schemaSource string

// LoadDir loads every .cue file in dir and compiles the declared types.
func LoadDir(dir string, base *registry.Registry) ([]*dataset.Type, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog: not a directory: %s", dir)
	}
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("catalog: no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("catalog: no CUE instances loaded from %s", dir)
	}
	if err := instances[0].Err; err != nil {
		return nil, fmt.Errorf("catalog: loading %s: %w", dir, formatCUEError(err))
	}
	value := ctx.BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("catalog: building %s: %w", dir, formatCUEError(err))
	}
	return compile(ctx, value, base)
}

// CompileSource compiles a single CUE source. filename is used in error
// positions.
func CompileSource(filename, src string, base *registry.Registry) ([]*dataset.Type, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("catalog: %w", formatCUEError(err))
	}
	return compile(ctx, value, base)
}

// FindCUEFiles walks dir and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// entry is one declaration before dependencies are resolved.
type entry struct {
	typ  *dataset.Type
	decl decl
	pos  cue.Value
}

func compile(ctx *cue.Context, value cue.Value, base *registry.Registry) ([]*dataset.Type, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("catalog: schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Dataset"))

	datasets := value.LookupPath(cue.ParsePath("dataset"))
	if !datasets.Exists() {
		return nil, nil
	}
	iter, err := datasets.Fields()
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", formatCUEError(err))
	}

	entries := make(map[string]*entry)
	var names []string
	for iter.Next() {
		name := iter.Label()
		v := def.Unify(iter.Value())
		if err := v.Validate(cue.Concrete(true)); err != nil {
			return nil, malformed(name, formatCUEError(err))
		}
		var d decl
		if err := v.Decode(&d); err != nil {
			return nil, malformed(name, formatCUEError(err))
		}
		node, kind, err := d.node()
		if err != nil {
			return nil, malformed(name, &CompileError{Field: err.field, Message: err.msg, Pos: iter.Value().Pos()})
		}
		entries[name] = &entry{
			typ:  &dataset.Type{Name: name, Version: d.Version, Kind: kind, Node: node, Tags: d.Tags},
			decl: d,
			pos:  iter.Value(),
		}
		names = append(names, name)
	}
	slices.Sort(names)

	resolve := func(dep string) (*dataset.Type, bool) {
		if e, ok := entries[dep]; ok {
			return e.typ, true
		}
		if base != nil {
			if t, err := base.Resolve(dep); err == nil {
				return t, true
			}
		}
		return nil, false
	}

	types := make([]*dataset.Type, 0, len(names))
	for _, name := range names {
		e := entries[name]
		deps, err := e.decl.dependencies(resolve)
		if err != nil {
			return nil, malformed(name, &CompileError{Field: "depends", Message: err.Error(), Pos: e.pos.Pos()})
		}
		e.typ.Depends = deps
		if err := e.typ.Validate(); err != nil {
			return nil, err
		}
		if err := e.decl.checkArity(len(deps)); err != nil {
			return nil, malformed(name, &CompileError{Field: "depends", Message: err.Error(), Pos: e.pos.Pos()})
		}
		types = append(types, e.typ)
	}
	return types, nil
}

func malformed(name string, err error) error {
	return &dataset.Error{
		Code:    dataset.ErrCodeMalformedType,
		Dataset: name,
		Message: "invalid catalog declaration",
		Err:     err,
	}
}
