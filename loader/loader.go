// Package loader resolves declarative tuning documents into live service
// state: compound values computed by chained equations, impound deny rules,
// and volumetric-phi parameters. Services stage on Configure and commit on
// Apply, so nothing from a document goes live until every service has been
// configured from it; entries that fail are skipped and the rest commit.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/itskum47/mirrorblade/jitter"
	"github.com/itskum47/mirrorblade/logging"
)

// Context carries the base numeric environment into Configure.
type Context struct {
	BaseEnv map[string]float64
}

// Service is one named loader target.
type Service interface {
	Name() string
	Configure(cfg map[string]json.RawMessage, ctx *Context)
	Apply()
	Snapshot() any
	Reset()
}

// Loader owns the registered services.
type Loader struct {
	mu       sync.Mutex
	services map[string]Service
	log      *logging.Logger
}

// New returns a loader with the built-in services registered.
func New(log *logging.Logger, jitterSink *jitter.Source) *Loader {
	l := &Loader{services: make(map[string]Service), log: log}
	l.Register(NewCompound(log))
	l.Register(NewImpound())
	l.Register(NewVolPhi(jitterSink))
	return l
}

// Register adds or replaces a service by name.
func (l *Loader) Register(svc Service) {
	if svc == nil {
		return
	}
	l.mu.Lock()
	l.services[svc.Name()] = svc
	l.mu.Unlock()
}

// Get returns the service registered under name, or nil.
func (l *Loader) Get(name string) Service {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.services[name]
}

func (l *Loader) sortedServices() []Service {
	l.mu.Lock()
	names := make([]string, 0, len(l.services))
	for n := range l.services {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Service, 0, len(names))
	for _, n := range names {
		out = append(out, l.services[n])
	}
	l.mu.Unlock()
	return out
}

// Load configures every service from the document, then applies all of them.
func (l *Loader) Load(cfg map[string]json.RawMessage, env map[string]float64) {
	ctx := &Context{BaseEnv: env}
	svcs := l.sortedServices()
	for _, s := range svcs {
		s.Configure(cfg, ctx)
	}
	for _, s := range svcs {
		s.Apply()
	}
}

// LoadFile reads a JSON document from disk and loads it.
func (l *Loader) LoadFile(path string, env map[string]float64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read loader config %s: %w", path, err)
	}
	var cfg map[string]json.RawMessage
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse loader config %s: %w", path, err)
	}
	l.Load(cfg, env)
	return nil
}

// SnapshotAll returns every service's live snapshot keyed by service name.
func (l *Loader) SnapshotAll() map[string]any {
	out := make(map[string]any)
	for _, s := range l.sortedServices() {
		out[s.Name()] = s.Snapshot()
	}
	return out
}

// ---------------- Compound ----------------

// Compound resolves named entities from equations. Entities are processed in
// declaration order; each computed value joins the environment under its own
// name so later equations can chain on it.
type Compound struct {
	mu     sync.Mutex
	staged map[string]float64
	values map[string]float64
	log    *logging.Logger
}

func NewCompound(log *logging.Logger) *Compound {
	return &Compound{
		staged: make(map[string]float64),
		values: make(map[string]float64),
		log:    log,
	}
}

func (c *Compound) Name() string { return "compound" }

type compoundDoc struct {
	Entities []struct {
		Name     string             `json:"name"`
		Equation string             `json:"equation"`
		Env      map[string]float64 `json:"env"`
	} `json:"entities"`
}

func (c *Compound) Configure(cfg map[string]json.RawMessage, ctx *Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = make(map[string]float64)

	raw, ok := cfg["compound"]
	if !ok {
		return
	}
	var doc compoundDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		if c.log != nil {
			c.log.Warnf("Compound config rejected: %v", err)
		}
		return
	}

	chain := make(map[string]float64)
	if ctx != nil {
		for k, v := range ctx.BaseEnv {
			chain[k] = v
		}
	}

	for _, e := range doc.Entities {
		if e.Name == "" || e.Equation == "" {
			continue
		}
		env := make(map[string]float64, len(chain)+len(e.Env))
		for k, v := range chain {
			env[k] = v
		}
		for k, v := range e.Env {
			env[k] = v
		}
		v, err := ResolveEquation(e.Equation, env)
		if err != nil {
			if c.log != nil {
				c.log.Warnf("Compound entity %q failed: %v", e.Name, err)
			}
			continue
		}
		c.staged[e.Name] = v
		chain[e.Name] = v
	}
}

func (c *Compound) Apply() {
	c.mu.Lock()
	c.values = c.staged
	c.staged = make(map[string]float64)
	for k, v := range c.values {
		c.staged[k] = v
	}
	c.mu.Unlock()
}

func (c *Compound) Snapshot() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *Compound) Reset() {
	c.mu.Lock()
	c.staged = make(map[string]float64)
	c.values = make(map[string]float64)
	c.mu.Unlock()
}

// Get returns the live value of one entity.
func (c *Compound) Get(entity string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[entity]
	return v, ok
}

// ---------------- Impound ----------------

// Rule is one glob deny pattern.
type Rule struct {
	Tag     string `json:"tag"`
	Pattern string `json:"match"`
}

// Impound keeps a literal deny list plus glob rules ('*' spans, '?' single).
type Impound struct {
	mu          sync.Mutex
	stagedItems []string
	stagedRules []Rule
	items       []string
	rules       []Rule
}

func NewImpound() *Impound { return &Impound{} }

func (im *Impound) Name() string { return "impound" }

type impoundDoc struct {
	Items []string `json:"items"`
	Rules []Rule   `json:"rules"`
}

func (im *Impound) Configure(cfg map[string]json.RawMessage, _ *Context) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.stagedItems = nil
	im.stagedRules = nil

	raw, ok := cfg["impound"]
	if !ok {
		return
	}
	var doc impoundDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return
	}
	im.stagedItems = append(im.stagedItems, doc.Items...)
	for _, r := range doc.Rules {
		if r.Pattern != "" {
			im.stagedRules = append(im.stagedRules, r)
		}
	}
}

func (im *Impound) Apply() {
	im.mu.Lock()
	im.items = im.stagedItems
	im.rules = im.stagedRules
	im.mu.Unlock()
}

func (im *Impound) Snapshot() any {
	im.mu.Lock()
	defer im.mu.Unlock()
	items := append([]string(nil), im.items...)
	rules := append([]Rule(nil), im.rules...)
	if items == nil {
		items = []string{}
	}
	if rules == nil {
		rules = []Rule{}
	}
	return map[string]any{"items": items, "rules": rules}
}

func (im *Impound) Reset() {
	im.mu.Lock()
	im.stagedItems, im.stagedRules = nil, nil
	im.items, im.rules = nil, nil
	im.mu.Unlock()
}

// IsImpounded reports whether name matches a literal item or any rule.
func (im *Impound) IsImpounded(name string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	for _, s := range im.items {
		if s == name {
			return true
		}
	}
	for _, r := range im.rules {
		if MatchLike(name, r.Pattern) {
			return true
		}
	}
	return false
}

// MatchLike is a glob matcher: '*' matches any span including empty, '?'
// matches exactly one character.
func MatchLike(text, pattern string) bool {
	ti, pi := 0, 0
	star, mark := -1, 0
	for ti < len(text) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == text[ti]):
			ti++
			pi++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			pi++
			mark = ti
		case star >= 0:
			pi = star + 1
			mark++
			ti = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// ---------------- VolPhi ----------------

// VolPhi stages volumetric-phi parameters and commits them to the live
// snapshot (and the jitter source, when one is attached) on Apply.
type VolPhi struct {
	mu     sync.Mutex
	staged jitter.Params
	live   jitter.Params
	sink   *jitter.Source
}

func NewVolPhi(sink *jitter.Source) *VolPhi {
	return &VolPhi{
		staged: jitter.DefaultParams(),
		live:   jitter.DefaultParams(),
		sink:   sink,
	}
}

func (v *VolPhi) Name() string { return "volumetricPhi" }

func (v *VolPhi) Configure(cfg map[string]json.RawMessage, _ *Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.staged = jitter.DefaultParams()

	raw, ok := cfg["volumetricPhi"]
	if !ok {
		return
	}
	p := v.staged
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	v.staged = clampPhi(p)
}

// Stage replaces the staged params directly (the volphi.set surface).
func (v *VolPhi) Stage(p jitter.Params) {
	v.mu.Lock()
	v.staged = clampPhi(p)
	v.mu.Unlock()
}

func (v *VolPhi) Apply() {
	v.mu.Lock()
	v.live = v.staged
	sink := v.sink
	live := v.live
	v.mu.Unlock()
	if sink != nil {
		sink.SetParams(live)
	}
}

func (v *VolPhi) Snapshot() any {
	return v.Get()
}

func (v *VolPhi) Reset() {
	v.mu.Lock()
	v.staged = jitter.DefaultParams()
	v.live = jitter.DefaultParams()
	v.mu.Unlock()
}

// Get returns the live params.
func (v *VolPhi) Get() jitter.Params {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.live
}

func clampPhi(p jitter.Params) jitter.Params {
	if p.DistanceMul < 0 {
		p.DistanceMul = 0
	}
	if p.DensityMul < 0 {
		p.DensityMul = 0
	}
	if p.HorizonFade < 0 {
		p.HorizonFade = 0
	} else if p.HorizonFade > 1 {
		p.HorizonFade = 1
	}
	if p.JitterStrength < 0 {
		p.JitterStrength = 0
	}
	if p.TemporalBlend < 0 {
		p.TemporalBlend = 0
	} else if p.TemporalBlend > 1 {
		p.TemporalBlend = 1
	}
	return p
}
