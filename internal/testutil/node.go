package testutil

import (
	"context"
	"sync"

	"github.com/seeqbio/cabin/internal/dataset"
)

// Node is a scriptable dataset.Node that remembers which instances it has
// produced. It implements Checker and Cleaner as well.
//
// Thread-safety: all methods are safe for concurrent use.
type Node struct {
	mu       sync.Mutex
	existing map[string]bool
	calls    []string

	// ProduceErr, when set, is returned by Produce after the instance has
	// been marked as produced, so Cleanup has something to remove.
	ProduceErr error
	// CheckErr, when set, is returned by Check.
	CheckErr error
	// Log, when non-nil, receives "<op> <type>" for every call. Share one
	// CallLog between nodes to observe ordering across types.
	Log *CallLog
}

// CallLog collects calls from several nodes.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Add appends a call.
func (l *CallLog) Add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

// Calls returns the calls so far.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (n *Node) record(op string, inst *dataset.Instance) {
	call := op + " " + inst.TypeName()
	n.calls = append(n.calls, call)
	if n.Log != nil {
		n.Log.Add(call)
	}
}

// Calls returns the calls made on this node.
func (n *Node) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

// Produced reports whether the instance currently exists.
func (n *Node) Produced(inst *dataset.Instance) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.existing[inst.Signature()]
}

// Exists implements dataset.Node.
func (n *Node) Exists(ctx context.Context, env *dataset.Env, inst *dataset.Instance) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.existing[inst.Signature()], nil
}

// Produce implements dataset.Node.
func (n *Node) Produce(ctx context.Context, env *dataset.Env, inst *dataset.Instance) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record("produce", inst)
	if n.existing == nil {
		n.existing = make(map[string]bool)
	}
	n.existing[inst.Signature()] = true
	return n.ProduceErr
}

// Check implements dataset.Checker.
func (n *Node) Check(ctx context.Context, env *dataset.Env, inst *dataset.Instance) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record("check", inst)
	return n.CheckErr
}

// Cleanup implements dataset.Cleaner.
func (n *Node) Cleanup(ctx context.Context, env *dataset.Env, inst *dataset.Instance) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record("cleanup", inst)
	delete(n.existing, inst.Signature())
	return nil
}
