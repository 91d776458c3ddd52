// Package ui is the declarative page description layer. An app describes its
// page by calling the component helpers inside a Page scope; the server
// executes the same app once to render and once per posted trigger, so
// component ids must come out identical across executions.
package ui

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Mode selects how an app execution treats posted values.
type Mode string

const (
	ModeRender  Mode = "render"
	ModeExecute Mode = "execute"
)

// App is a declarative page description. It must be safe to execute
// repeatedly and must not keep state between executions.
type App func(ctx context.Context) error

// RunStarter launches background agent work. Implemented by the server's
// runner; absent when an app executes standalone.
type RunStarter interface {
	StartRun(ctx context.Context, inputs map[string]any, files []string) (string, error)
}

// ErrNoActivePage is returned when a component helper is called outside a
// Page scope.
var ErrNoActivePage = errors.New("ui: no active page, component helpers must run inside ui.Page")

// ComponentType enumerates the supported page components.
type ComponentType string

const (
	ComponentText   ComponentType = "text"
	ComponentFile   ComponentType = "file"
	ComponentButton ComponentType = "button"
	ComponentChat   ComponentType = "chat"
)

// Component is one registered element of a page.
type Component struct {
	Type  ComponentType  `json:"type"`
	ID    string         `json:"id"`
	Props map[string]any `json:"props"`
}

// PageSpec is the result of one app execution: an ordered component list.
// It is never mutated once the execution that built it returns.
type PageSpec struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Components  []Component `json:"components"`
}

func (p *PageSpec) add(c Component) {
	p.Components = append(p.Components, c)
}

// Runtime carries the values of one app execution: the mode, posted inputs
// and uploaded files keyed by component id, the trigger id, and the run ids
// started during the execution. One Runtime belongs to exactly one
// execution; concurrent requests each carry their own via the context.
type Runtime struct {
	Mode    Mode
	Inputs  map[string]string
	Files   map[string][]string
	Trigger string
	Starter RunStarter

	pageStack  []*PageSpec
	rendered   *PageSpec
	slugCounts map[string]int
	usedIDs    map[string]bool
	runIDs     []string
}

// NewRuntime builds an empty runtime for the given mode.
func NewRuntime(mode Mode) *Runtime {
	return &Runtime{
		Mode:       mode,
		Inputs:     make(map[string]string),
		Files:      make(map[string][]string),
		slugCounts: make(map[string]int),
		usedIDs:    make(map[string]bool),
	}
}

// Rendered returns the most recent top-level page built by the execution,
// or nil when the app registered none.
func (rt *Runtime) Rendered() *PageSpec {
	return rt.rendered
}

// RecordRun appends a started run id so the HTTP boundary can discover
// which run this execution launched.
func (rt *Runtime) RecordRun(runID string) {
	rt.runIDs = append(rt.runIDs, runID)
}

// RunIDs returns the run ids recorded during this execution, in order.
func (rt *Runtime) RunIDs() []string {
	return rt.runIDs
}

// register adds a component to the active page and returns its id.
func (rt *Runtime) register(typ ComponentType, label string, props map[string]any) (string, error) {
	if len(rt.pageStack) == 0 {
		return "", ErrNoActivePage
	}
	if props == nil {
		props = make(map[string]any)
	}

	id, ok := props["id"].(string)
	if !ok || id == "" {
		id = rt.slugify(string(typ), label)
	}
	rt.usedIDs[id] = true
	props["label"] = label

	page := rt.pageStack[len(rt.pageStack)-1]
	page.add(Component{Type: typ, ID: id, Props: props})
	return id, nil
}

func (rt *Runtime) pushPage(page *PageSpec) {
	rt.pageStack = append(rt.pageStack, page)
	rt.rendered = page
}

func (rt *Runtime) popPage() {
	if len(rt.pageStack) == 0 {
		return
	}
	rt.pageStack = rt.pageStack[:len(rt.pageStack)-1]
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives a component id from its label. Counters are scoped to the
// (type, slug) pair so repeated labels disambiguate as slug-2, slug-3, …
// and the result is a pure function of registration order.
func (rt *Runtime) slugify(prefix, label string) string {
	base := slugStrip.ReplaceAllString(strings.ToLower(label), "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = prefix
	}
	key := prefix + "-" + base
	rt.slugCounts[key]++
	count := rt.slugCounts[key]
	id := base
	if count > 1 {
		id = base + "-" + strconv.Itoa(count)
	}
	// Same slug registered under another component type still needs a
	// unique id within the page.
	for rt.usedIDs[id] {
		count++
		rt.slugCounts[key] = count
		id = base + "-" + strconv.Itoa(count)
	}
	return id
}

type ctxKey struct{}

// NewContext returns a context carrying rt as the current runtime. The
// previous runtime, if any, is naturally restored when callers return to
// the parent context.
func NewContext(ctx context.Context, rt *Runtime) context.Context {
	return context.WithValue(ctx, ctxKey{}, rt)
}

// FromContext returns the runtime attached to ctx, or nil.
func FromContext(ctx context.Context) *Runtime {
	rt, _ := ctx.Value(ctxKey{}).(*Runtime)
	return rt
}

// Ensure returns the runtime attached to ctx, lazily attaching a fresh
// render-mode runtime when none is present. This covers running an app
// directly, outside the server.
func Ensure(ctx context.Context) (context.Context, *Runtime) {
	if rt := FromContext(ctx); rt != nil {
		return ctx, rt
	}
	rt := NewRuntime(ModeRender)
	return NewContext(ctx, rt), rt
}
