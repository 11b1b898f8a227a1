package dataset

import (
	"context"
	"fmt"
	"strings"
)

// Availability is what a Source reports about the expected version.
type Availability struct {
	OK      bool
	Current string // version currently offered by the source, if known
}

// Source locates an external dataset and tells whether the expected version
// can be fetched right now.
type Source interface {
	URL(inst *Instance) string
	Check(ctx context.Context, env *Env, inst *Instance) (Availability, error)
}

// External is the node of a dataset living outside cabin. It is never
// produced: if the source does not offer the expected version, the build
// fails with EXTERNAL_UNAVAILABLE.
type External struct {
	Source Source
}

// Exists reports whether the source offers the expected version. A source
// that cannot be checked is EXTERNAL_UNAVAILABLE.
func (n External) Exists(ctx context.Context, env *Env, inst *Instance) (bool, error) {
	a, err := n.Source.Check(ctx, env, inst)
	if err != nil {
		return false, NewExternalUnavailableError(inst.Name(), "checking %s: %v", n.Source.URL(inst), err)
	}
	if !a.OK {
		env.Log().Debug("external source unavailable",
			"dataset", inst.Name(),
			"expected", inst.Version(),
			"current", a.Current,
		)
	}
	return a.OK, nil
}

// Produce only re-checks availability; external datasets cannot be made.
func (n External) Produce(ctx context.Context, env *Env, inst *Instance) error {
	a, err := n.Source.Check(ctx, env, inst)
	if err != nil {
		return NewExternalUnavailableError(inst.Name(), "checking %s: %v", n.Source.URL(inst), err)
	}
	if !a.OK {
		if a.Current != "" {
			return NewExternalUnavailableError(inst.Name(),
				"version %q is not available from %s (available: %q)", inst.Version(), n.Source.URL(inst), a.Current)
		}
		return NewExternalUnavailableError(inst.Name(),
			"version %q is not available from %s", inst.Version(), n.Source.URL(inst))
	}
	return nil
}

// Location returns the source URL.
func (n External) Location(env *Env, inst *Instance) (string, error) {
	return n.Source.URL(inst), nil
}

// expandVersion substitutes {version} in a URL template.
func expandVersion(template string, inst *Instance) string {
	return strings.ReplaceAll(template, "{version}", inst.Version())
}

// StaticURL is a source whose URL embeds the version, so the same URL always
// serves the same data. Unless Probe is set it is assumed available.
type StaticURL struct {
	Template string // may contain {version}
	Probe    bool   // check reachability with the fetcher
}

// URL returns the expanded URL.
func (s StaticURL) URL(inst *Instance) string {
	return expandVersion(s.Template, inst)
}

// Check probes the URL if requested.
func (s StaticURL) Check(ctx context.Context, env *Env, inst *Instance) (Availability, error) {
	if !s.Probe {
		return Availability{OK: true, Current: inst.Version()}, nil
	}
	if env == nil || env.Fetcher == nil {
		return Availability{}, fmt.Errorf("no fetcher configured to probe %s", s.URL(inst))
	}
	ok, err := env.Fetcher.Available(ctx, s.URL(inst))
	if err != nil {
		return Availability{}, err
	}
	a := Availability{OK: ok}
	if ok {
		a.Current = inst.Version()
	}
	return a, nil
}

// DefaultModTimeLayout renders modification times as dates.
const DefaultModTimeLayout = "2006-01-02"

// ModTimeURL is a source that is not versioned by URL: the advertised
// modification time, rendered with Layout, is the version. Once the source
// is updated upstream, the old version can no longer be fetched.
type ModTimeURL struct {
	Template string
	Layout   string // defaults to DefaultModTimeLayout
}

// URL returns the expanded URL.
func (s ModTimeURL) URL(inst *Instance) string {
	return expandVersion(s.Template, inst)
}

// Check compares the advertised modification time with the expected version.
func (s ModTimeURL) Check(ctx context.Context, env *Env, inst *Instance) (Availability, error) {
	if env == nil || env.Fetcher == nil {
		return Availability{}, fmt.Errorf("no fetcher configured to check %s", s.URL(inst))
	}
	mt, err := env.Fetcher.ModTime(ctx, s.URL(inst))
	if err != nil {
		return Availability{}, err
	}
	layout := s.Layout
	if layout == "" {
		layout = DefaultModTimeLayout
	}
	current := mt.UTC().Format(layout)
	return Availability{OK: current == inst.Version(), Current: current}, nil
}
