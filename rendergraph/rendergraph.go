// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package rendergraph implements the frame graph: the compiled
// schedule of render passes, grouped into batches that share a
// consistent set of resource states, with the minimal set of
// barriers inserted between batches.
//
// Compile groups passes greedily, in submission order: a pass
// joins the current batch unless doing so would require one of
// its resources to be in two different states within the same
// batch, in which case the batch is closed and a new one
// begins. Between batches (and once more at the very end, to
// return every resource to the state it started the frame in)
// the graph computes the transition barriers needed to move
// each resource from its last recorded state to the state the
// next batch requires.
//
// A Graph's compiled form only depends on the sequence of
// passes, the resource usages they declared and the state each
// used resource starts in, so Compile results are cached by a
// hash of those: building the
// same graph shape frame after frame (the common case) costs a
// cache lookup, not a re-run of the batching algorithm.
package rendergraph

import (
	"errors"
	"fmt"
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru"

	"github.com/vireoengine/forge/driver"
)

// State identifies the logical usage a resource is in for the
// duration of a batch. It is distinct from driver.Layout: a
// single State maps to a fixed (Sync, Access, Layout) triple,
// so passes never construct barriers by hand.
type State int

// Resource states recognized by the graph.
const (
	StateUnknown State = iota
	StateShaderResource
	StateRenderTarget
	StateDepthWrite
	StateDepthRead
	StateConstant
	StateUnorderedAccess
	StateCopySource
	StateCopyDest
	StateIndirectArgument
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateShaderResource:
		return "ShaderResource"
	case StateRenderTarget:
		return "RenderTarget"
	case StateDepthWrite:
		return "DepthWrite"
	case StateDepthRead:
		return "DepthRead"
	case StateConstant:
		return "Constant"
	case StateUnorderedAccess:
		return "UnorderedAccess"
	case StateCopySource:
		return "CopySource"
	case StateCopyDest:
		return "CopyDest"
	case StateIndirectArgument:
		return "IndirectArgument"
	case StatePresent:
		return "Present"
	default:
		return "Unknown"
	}
}

// barrierOf maps a State to the synchronization/access/layout
// triple used to build a driver.Transition.
func barrierOf(s State) (driver.Sync, driver.Access, driver.Layout) {
	switch s {
	case StateShaderResource:
		return driver.SFragmentShading | driver.SVertexShading | driver.SComputeShading, driver.AShaderRead, driver.LShaderRead
	case StateRenderTarget:
		return driver.SColorOutput, driver.AColorWrite, driver.LColorTarget
	case StateDepthWrite:
		return driver.SDSOutput, driver.ADSWrite, driver.LDSTarget
	case StateDepthRead:
		return driver.SDSOutput | driver.SFragmentShading, driver.ADSRead, driver.LDSRead
	case StateConstant:
		return driver.SVertexShading | driver.SFragmentShading | driver.SComputeShading, driver.AShaderRead, driver.LCommon
	case StateUnorderedAccess:
		return driver.SComputeShading | driver.SFragmentShading, driver.AShaderRead | driver.AShaderWrite, driver.LCommon
	case StateCopySource:
		return driver.SCopy, driver.ACopyRead, driver.LCopySrc
	case StateCopyDest:
		return driver.SCopy, driver.ACopyWrite, driver.LCopyDst
	case StateIndirectArgument:
		return driver.SDraw, driver.AAnyRead, driver.LCommon
	case StatePresent:
		return driver.SNone, driver.ANone, driver.LPresent
	default:
		return driver.SNone, driver.ANone, driver.LUndefined
	}
}

// Resource is a single entry registered with a Graph, naming
// either a driver.Image (via View) or a driver.Buffer.
type Resource struct {
	Name  string
	View  driver.ImageView // nil for buffer-backed resources
	Image driver.Image     // only needed for Transition.IView construction via View
}

// Errors returned by Graph methods.
var (
	ErrDuplicateResource = errors.New("rendergraph: resource already registered")
	ErrMissingResource   = errors.New("rendergraph: pass references unregistered resource")
	ErrUsageConflict     = errors.New("rendergraph: pass declares the same resource under conflicting states")
)

// Usages is the set of resource usages a Pass declares, built
// with the With* methods.
type Usages struct {
	entries  []usageEntry
	geometry bool
}

type usageEntry struct {
	name  string
	state State
}

// NewUsages creates an empty Usages builder.
func NewUsages() *Usages { return &Usages{} }

func (u *Usages) with(name string, s State) *Usages {
	u.entries = append(u.entries, usageEntry{name, s})
	return u
}

// WithShaderResource declares a read-only shader resource view.
func (u *Usages) WithShaderResource(name string) *Usages { return u.with(name, StateShaderResource) }

// WithRenderTarget declares a color render target.
func (u *Usages) WithRenderTarget(name string) *Usages { return u.with(name, StateRenderTarget) }

// WithDepthReadWrite declares a depth/stencil target written by
// this pass.
func (u *Usages) WithDepthReadWrite(name string) *Usages { return u.with(name, StateDepthWrite) }

// WithDepthRead declares a depth/stencil target read (but not
// written) by this pass.
func (u *Usages) WithDepthRead(name string) *Usages { return u.with(name, StateDepthRead) }

// WithConstant declares a constant/uniform buffer.
func (u *Usages) WithConstant(name string) *Usages { return u.with(name, StateConstant) }

// WithUnorderedAccess declares a read/write UAV resource.
func (u *Usages) WithUnorderedAccess(name string) *Usages {
	return u.with(name, StateUnorderedAccess)
}

// WithCopySource declares a resource read by a copy command.
func (u *Usages) WithCopySource(name string) *Usages { return u.with(name, StateCopySource) }

// WithCopyDest declares a resource written by a copy command.
func (u *Usages) WithCopyDest(name string) *Usages { return u.with(name, StateCopyDest) }

// WithIndirectArguments declares a buffer read as indirect draw
// or dispatch arguments.
func (u *Usages) WithIndirectArguments(name string) *Usages {
	return u.with(name, StateIndirectArgument)
}

// IsGeometryPass marks the pass as issuing draw/mesh-shader
// work, for passes that key scheduling decisions (e.g. the
// indirect command buffer manager) off of which passes touch
// geometry.
func (u *Usages) IsGeometryPass() *Usages {
	u.geometry = true
	return u
}

// Pass is a single node in the graph.
type Pass interface {
	// Name uniquely identifies the pass for diagnostics and
	// GetPassByName-style lookups.
	Name() string

	// DeclareResourceUsages returns the set of resources this
	// pass reads or writes, and the state each must be in.
	// It is called by Compile, not by Execute.
	DeclareResourceUsages() *Usages

	// Execute records the pass' commands into cb. By the time
	// Execute is called, every resource declared in
	// DeclareResourceUsages is already in the state requested.
	Execute(cb driver.CmdBuffer) error
}

type transition struct {
	name     string
	from, to State
}

type passBatch struct {
	passes         []Pass
	transitions    []transition
	resourceStates map[string]State
}

// Graph holds registered resources/passes and, once Compile
// succeeds, the resulting batch schedule.
type Graph struct {
	resources map[string]*Resource
	initState map[string]State
	curState  map[string]State
	passes    []Pass

	batches []passBatch
	cache   *lru.Cache
}

// New creates an empty Graph. cacheSize bounds the number of
// distinct compiled schedules kept in memory (a renderer that
// only ever builds one or two graph shapes, e.g. "shadow-caster
// present" vs. "no shadows this frame", needs very few entries).
func New(cacheSize int) (*Graph, error) {
	if cacheSize <= 0 {
		cacheSize = 8
	}
	c, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Graph{
		resources: make(map[string]*Resource),
		initState: make(map[string]State),
		curState:  make(map[string]State),
		cache:     c,
	}, nil
}

// AddResource registers a resource under its initial state. It
// is an error to register the same name twice without an
// intervening Reset.
func (g *Graph) AddResource(res *Resource, initial State) error {
	if _, ok := g.resources[res.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateResource, res.Name)
	}
	g.resources[res.Name] = res
	g.initState[res.Name] = initial
	g.curState[res.Name] = initial
	return nil
}

// AddPass appends a pass to the graph's submission order.
func (g *Graph) AddPass(p Pass) { g.passes = append(g.passes, p) }

// Reset clears every registered pass and resource so the Graph
// can be rebuilt for the next distinct frame shape. Compile's
// cache is preserved across Reset calls.
func (g *Graph) Reset() {
	g.resources = make(map[string]*Resource)
	g.initState = make(map[string]State)
	g.curState = make(map[string]State)
	g.passes = nil
	g.batches = nil
}

// signature hashes the pass/usage sequence, together with the
// current and initial state of each used resource, so that
// identical graph shapes hit the compile cache instead of
// re-running the batching algorithm.
func (g *Graph) signature() (uint64, error) {
	h := fnv.New64a()
	for _, p := range g.passes {
		fmt.Fprintf(h, "P:%s\n", p.Name())
		u := p.DeclareResourceUsages()
		for _, e := range u.entries {
			if _, ok := g.resources[e.name]; !ok {
				return 0, fmt.Errorf("%w: %q (pass %q)", ErrMissingResource, e.name, p.Name())
			}
			fmt.Fprintf(h, "  U:%s=%d from %d/%d\n", e.name, e.state, g.curState[e.name], g.initState[e.name])
		}
	}
	return h.Sum64(), nil
}

// isNewBatchNeeded reports whether adding usages to cur would
// require some resource already used in cur to be in two
// different states simultaneously.
func isNewBatchNeeded(cur *passBatch, u *Usages) bool {
	for _, e := range u.entries {
		if s, ok := cur.resourceStates[e.name]; ok && s != e.state {
			return true
		}
	}
	return false
}

func updateDesiredStates(cur *passBatch, u *Usages) error {
	for _, e := range u.entries {
		if s, ok := cur.resourceStates[e.name]; ok && s != e.state {
			// Caught by isNewBatchNeeded for cross-pass
			// conflicts; a same-call conflict (a single
			// pass naming one resource under two states)
			// is a caller bug, not a scheduling decision.
			return fmt.Errorf("%w: %q wants both %v and %v", ErrUsageConflict, e.name, s, e.state)
		}
		cur.resourceStates[e.name] = e.state
	}
	return nil
}

func (g *Graph) computeTransitions(batch *passBatch, previous map[string]State) {
	for name, want := range batch.resourceStates {
		from, ok := previous[name]
		if !ok {
			from = g.curState[name]
		}
		if from != want {
			batch.transitions = append(batch.transitions, transition{name, from, want})
		}
	}
}

// Compile groups the registered passes into resource-state
// consistent batches and computes the barriers needed between
// them, finishing with a loop-back batch that returns every
// touched resource to the state it was in when Compile began.
func (g *Graph) Compile() error {
	sig, err := g.signature()
	if err != nil {
		return err
	}
	if v, ok := g.cache.Get(sig); ok {
		g.batches = v.([]passBatch)
		return nil
	}

	var batches []passBatch
	cur := passBatch{resourceStates: make(map[string]State)}
	final := make(map[string]State)

	closeBatch := func() {
		g.computeTransitions(&cur, final)
		for name, s := range cur.resourceStates {
			final[name] = s
		}
		batches = append(batches, cur)
		cur = passBatch{resourceStates: make(map[string]State)}
	}

	for _, p := range g.passes {
		u := p.DeclareResourceUsages()
		if isNewBatchNeeded(&cur, u) {
			closeBatch()
		}
		cur.passes = append(cur.passes, p)
		if err := updateDesiredStates(&cur, u); err != nil {
			return err
		}
	}
	closeBatch()

	// Loop-back batch: return every resource touched this
	// frame to the state it was in at the start of Compile.
	loop := passBatch{resourceStates: make(map[string]State)}
	for name, last := range final {
		if init := g.initState[name]; init != last {
			loop.transitions = append(loop.transitions, transition{name, last, init})
		}
	}
	batches = append(batches, loop)

	g.batches = batches
	g.cache.Add(sig, batches)
	return nil
}

// Execute records into cb, batch by batch, the transition
// barriers and pass commands of the compiled schedule. Each
// batch's barriers are recorded between a cb.Begin and cb.End
// pair; Execute neither resets cb nor submits it.
func (g *Graph) Execute(cb driver.CmdBuffer) error {
	for bi := range g.batches {
		batch := &g.batches[bi]
		if len(batch.transitions) > 0 {
			if err := cb.Begin(); err != nil {
				return err
			}
			ts := make([]driver.Transition, 0, len(batch.transitions))
			for _, t := range batch.transitions {
				res := g.resources[t.name]
				syncB, accB, layB := barrierOf(t.from)
				syncA, accA, layA := barrierOf(t.to)
				ts = append(ts, driver.Transition{
					Barrier: driver.Barrier{
						SyncBefore: syncB, SyncAfter: syncA,
						AccessBefore: accB, AccessAfter: accA,
					},
					LayoutBefore: layB,
					LayoutAfter:  layA,
					IView:        res.View,
				})
			}
			cb.Transition(ts)
			if err := cb.End(); err != nil {
				return err
			}
		}
		for _, p := range batch.passes {
			if err := p.Execute(cb); err != nil {
				return fmt.Errorf("rendergraph: pass %q: %w", p.Name(), err)
			}
		}
	}
	// Record the post-frame state so next frame's Compile
	// (after a Reset + re-registration) starts from here.
	for name, s := range g.batches[len(g.batches)-2].resourceStates {
		g.curState[name] = s
	}
	for _, t := range g.batches[len(g.batches)-1].transitions {
		g.curState[t.name] = t.to
	}
	return nil
}

// BatchCount returns the number of batches in the last
// successful Compile, for tests and diagnostics.
func (g *Graph) BatchCount() int { return len(g.batches) }
