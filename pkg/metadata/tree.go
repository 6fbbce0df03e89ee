package metadata

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/tunetree/tunetree/pkg/hyperparams"
	"github.com/tunetree/tunetree/pkg/scope"
)

// Default names used when the caller does not partition work explicitly.
const (
	DefaultProject = "default_project"
	DefaultClient  = "default_client"
)

// Root is the top of the metadata tree. It has no id of its own and owns
// an ordered map of projects keyed by name.
type Root struct {
	projects *orderedmap.OrderedMap[string, *Project]
}

func NewRoot() *Root {
	return &Root{projects: orderedmap.New[string, *Project]()}
}

func (r *Root) Kind() scope.Kind { return scope.Root }
func (r *Root) ID() scope.Attr   { return nil }

func (r *Root) SetID(id scope.Attr) error {
	return invariantf("the root node has no id, cannot set %v", id)
}

func (r *Root) Keys() []scope.Attr   { return mapKeysOf(r.projects) }
func (r *Root) Values() []Node       { return mapValuesOf(r.projects) }
func (r *Root) Child(id scope.Attr) (Node, bool) { return mapChildOf(r.projects, id) }

// Project returns the project stored under name, if present and materialized.
func (r *Root) Project(name string) (*Project, bool) {
	p, ok := r.projects.Get(name)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

func (r *Root) Store(child Node) (scope.Attr, error) {
	return mapStoreInto(r.projects, r, child)
}

func (r *Root) SetChildKeys(keys []scope.Attr) error {
	om, err := mapPlaceholders[*Project](r, keys)
	if err != nil {
		return err
	}
	r.projects = om
	return nil
}

func (r *Root) SetChildrenFrom(other Node) error {
	o, ok := other.(*Root)
	if !ok {
		return invariantf("cannot adopt children of %T into a root node", other)
	}
	r.projects = o.projects
	return nil
}

func (r *Root) Shallow() Node {
	out := NewRoot()
	for p := r.projects.Oldest(); p != nil; p = p.Next() {
		out.projects.Set(p.Key, nil)
	}
	return out
}

func (r *Root) Clone() Node {
	out := NewRoot()
	for p := r.projects.Oldest(); p != nil; p = p.Next() {
		if p.Value == nil {
			out.projects.Set(p.Key, nil)
		} else {
			out.projects.Set(p.Key, p.Value.Clone().(*Project))
		}
	}
	return out
}

func (r *Root) Get(loc scope.Location) (Node, error) { return descend(r, loc) }

// Project groups the clients of one organization or study.
type Project struct {
	Name string

	clients *orderedmap.OrderedMap[string, *Client]
}

func NewProject(name string) *Project {
	return &Project{Name: name, clients: orderedmap.New[string, *Client]()}
}

func (p *Project) Kind() scope.Kind { return scope.Project }
func (p *Project) ID() scope.Attr   { return p.Name }

func (p *Project) SetID(id scope.Attr) error {
	name, ok := id.(string)
	if !ok || name == "" {
		return invariantf("project id must be a non-empty string, got %v", id)
	}
	p.Name = name
	return nil
}

func (p *Project) Keys() []scope.Attr   { return mapKeysOf(p.clients) }
func (p *Project) Values() []Node       { return mapValuesOf(p.clients) }
func (p *Project) Child(id scope.Attr) (Node, bool) { return mapChildOf(p.clients, id) }

// Client returns the client stored under name, if present and materialized.
func (p *Project) Client(name string) (*Client, bool) {
	c, ok := p.clients.Get(name)
	if !ok || c == nil {
		return nil, false
	}
	return c, true
}

func (p *Project) Store(child Node) (scope.Attr, error) {
	return mapStoreInto(p.clients, p, child)
}

func (p *Project) SetChildKeys(keys []scope.Attr) error {
	om, err := mapPlaceholders[*Client](p, keys)
	if err != nil {
		return err
	}
	p.clients = om
	return nil
}

func (p *Project) SetChildrenFrom(other Node) error {
	o, ok := other.(*Project)
	if !ok {
		return invariantf("cannot adopt children of %T into a project node", other)
	}
	p.clients = o.clients
	return nil
}

func (p *Project) Shallow() Node {
	out := NewProject(p.Name)
	for c := p.clients.Oldest(); c != nil; c = c.Next() {
		out.clients.Set(c.Key, nil)
	}
	return out
}

func (p *Project) Clone() Node {
	out := NewProject(p.Name)
	for c := p.clients.Oldest(); c != nil; c = c.Next() {
		if c.Value == nil {
			out.clients.Set(c.Key, nil)
		} else {
			out.clients.Set(c.Key, c.Value.Clone().(*Client))
		}
	}
	return out
}

func (p *Project) Get(loc scope.Location) (Node, error) { return descend(p, loc) }

// Client owns the optimization rounds run against one dataset/pipeline
// pairing, and remembers which metric drives trial selection.
type Client struct {
	Name           string
	MainMetricName string

	rounds []*Round
}

func NewClient(name string) *Client {
	return &Client{Name: name}
}

func (c *Client) Kind() scope.Kind { return scope.Client }
func (c *Client) ID() scope.Attr   { return c.Name }

func (c *Client) SetID(id scope.Attr) error {
	name, ok := id.(string)
	if !ok || name == "" {
		return invariantf("client id must be a non-empty string, got %v", id)
	}
	c.Name = name
	return nil
}

func (c *Client) Keys() []scope.Attr   { return listKeysOf(c.rounds) }
func (c *Client) Values() []Node       { return listValuesOf(c.rounds) }
func (c *Client) Child(id scope.Attr) (Node, bool) { return listChildOf(c.rounds, id) }

// Rounds returns the materialized rounds in order; placeholder slots are nil.
func (c *Client) Rounds() []*Round { return c.rounds }

func (c *Client) Store(child Node) (scope.Attr, error) {
	return listStoreInto(&c.rounds, c, child)
}

func (c *Client) SetChildKeys(keys []scope.Attr) error {
	list, err := listPlaceholders[*Round](c, keys)
	if err != nil {
		return err
	}
	c.rounds = list
	return nil
}

func (c *Client) SetChildrenFrom(other Node) error {
	o, ok := other.(*Client)
	if !ok {
		return invariantf("cannot adopt children of %T into a client node", other)
	}
	c.rounds = o.rounds
	return nil
}

func (c *Client) Shallow() Node {
	out := NewClient(c.Name)
	out.MainMetricName = c.MainMetricName
	out.rounds = make([]*Round, len(c.rounds))
	return out
}

func (c *Client) Clone() Node {
	out := NewClient(c.Name)
	out.MainMetricName = c.MainMetricName
	out.rounds = make([]*Round, len(c.rounds))
	for i, r := range c.rounds {
		if r != nil {
			out.rounds[i] = r.Clone().(*Round)
		}
	}
	return out
}

func (c *Client) Get(loc scope.Location) (Node, error) { return descend(c, loc) }

// Round is one optimization run producing a sequence of trials.
type Round struct {
	Number int

	trials []*Trial
}

func NewRound(number int) *Round {
	return &Round{Number: number}
}

func (r *Round) Kind() scope.Kind { return scope.Round }
func (r *Round) ID() scope.Attr   { return r.Number }

func (r *Round) SetID(id scope.Attr) error {
	n, ok := id.(int)
	if !ok || n < 0 {
		return invariantf("round id must be a non-negative int, got %v", id)
	}
	r.Number = n
	return nil
}

func (r *Round) Keys() []scope.Attr   { return listKeysOf(r.trials) }
func (r *Round) Values() []Node       { return listValuesOf(r.trials) }
func (r *Round) Child(id scope.Attr) (Node, bool) { return listChildOf(r.trials, id) }

// Trials returns the materialized trials in order; placeholder slots are nil.
func (r *Round) Trials() []*Trial { return r.trials }

func (r *Round) Store(child Node) (scope.Attr, error) {
	return listStoreInto(&r.trials, r, child)
}

func (r *Round) SetChildKeys(keys []scope.Attr) error {
	list, err := listPlaceholders[*Trial](r, keys)
	if err != nil {
		return err
	}
	r.trials = list
	return nil
}

func (r *Round) SetChildrenFrom(other Node) error {
	o, ok := other.(*Round)
	if !ok {
		return invariantf("cannot adopt children of %T into a round node", other)
	}
	r.trials = o.trials
	return nil
}

func (r *Round) Shallow() Node {
	out := NewRound(r.Number)
	out.trials = make([]*Trial, len(r.trials))
	return out
}

func (r *Round) Clone() Node {
	out := NewRound(r.Number)
	out.trials = make([]*Trial, len(r.trials))
	for i, t := range r.trials {
		if t != nil {
			out.trials[i] = t.Clone().(*Trial)
		}
	}
	return out
}

func (r *Round) Get(loc scope.Location) (Node, error) { return descend(r, loc) }

// Trial is one hyperparameter sample's end-to-end train/validate attempt,
// composed of one or more validation splits.
type Trial struct {
	Number int
	Attempt

	splits []*TrialSplit
}

func NewTrial(number int, hp hyperparams.Samples) *Trial {
	return &Trial{Number: number, Attempt: newAttempt(hp)}
}

func (t *Trial) Kind() scope.Kind { return scope.Trial }
func (t *Trial) ID() scope.Attr   { return t.Number }

func (t *Trial) SetID(id scope.Attr) error {
	n, ok := id.(int)
	if !ok || n < 0 {
		return invariantf("trial id must be a non-negative int, got %v", id)
	}
	t.Number = n
	return nil
}

func (t *Trial) Keys() []scope.Attr   { return listKeysOf(t.splits) }
func (t *Trial) Values() []Node       { return listValuesOf(t.splits) }
func (t *Trial) Child(id scope.Attr) (Node, bool) { return listChildOf(t.splits, id) }

// Splits returns the materialized splits in order; placeholder slots are nil.
func (t *Trial) Splits() []*TrialSplit { return t.splits }

func (t *Trial) Store(child Node) (scope.Attr, error) {
	return listStoreInto(&t.splits, t, child)
}

func (t *Trial) SetChildKeys(keys []scope.Attr) error {
	list, err := listPlaceholders[*TrialSplit](t, keys)
	if err != nil {
		return err
	}
	t.splits = list
	return nil
}

func (t *Trial) SetChildrenFrom(other Node) error {
	o, ok := other.(*Trial)
	if !ok {
		return invariantf("cannot adopt children of %T into a trial node", other)
	}
	t.splits = o.splits
	return nil
}

func (t *Trial) Shallow() Node {
	out := &Trial{Number: t.Number, Attempt: t.cloneAttempt()}
	out.splits = make([]*TrialSplit, len(t.splits))
	return out
}

func (t *Trial) Clone() Node {
	out := &Trial{Number: t.Number, Attempt: t.cloneAttempt()}
	out.splits = make([]*TrialSplit, len(t.splits))
	for i, s := range t.splits {
		if s != nil {
			out.splits[i] = s.Clone().(*TrialSplit)
		}
	}
	return out
}

func (t *Trial) cloneAttempt() Attempt {
	a := t.Attempt
	a.Hyperparams = t.Hyperparams.Clone()
	return a
}

func (t *Trial) Get(loc scope.Location) (Node, error) { return descend(t, loc) }

// TrialSplit is one train/validation partition's fit+evaluate attempt
// within a trial. It owns the metric results keyed by metric name.
type TrialSplit struct {
	Number int
	Attempt

	metrics *orderedmap.OrderedMap[string, *MetricResult]
}

func NewTrialSplit(number int, hp hyperparams.Samples) *TrialSplit {
	return &TrialSplit{
		Number:  number,
		Attempt: newAttempt(hp),
		metrics: orderedmap.New[string, *MetricResult](),
	}
}

func (s *TrialSplit) Kind() scope.Kind { return scope.TrialSplit }
func (s *TrialSplit) ID() scope.Attr   { return s.Number }

func (s *TrialSplit) SetID(id scope.Attr) error {
	n, ok := id.(int)
	if !ok || n < 0 {
		return invariantf("split id must be a non-negative int, got %v", id)
	}
	s.Number = n
	return nil
}

func (s *TrialSplit) Keys() []scope.Attr   { return mapKeysOf(s.metrics) }
func (s *TrialSplit) Values() []Node       { return mapValuesOf(s.metrics) }
func (s *TrialSplit) Child(id scope.Attr) (Node, bool) { return mapChildOf(s.metrics, id) }

// Metric returns the metric result stored under name, if materialized.
func (s *TrialSplit) Metric(name string) (*MetricResult, bool) {
	m, ok := s.metrics.Get(name)
	if !ok || m == nil {
		return nil, false
	}
	return m, true
}

// RecordEpoch appends one epoch's train and validation values to the named
// metric, creating the metric result on first use. A nil validation value
// records the train side only.
func (s *TrialSplit) RecordEpoch(name string, train float64, validation *float64, higherIsBetter bool) *MetricResult {
	m, ok := s.Metric(name)
	if !ok {
		m = NewMetricResult(name, higherIsBetter)
		s.metrics.Set(name, m)
	}
	m.TrainValues = append(m.TrainValues, train)
	if validation != nil {
		m.ValidationValues = append(m.ValidationValues, *validation)
	}
	return m
}

func (s *TrialSplit) Store(child Node) (scope.Attr, error) {
	return mapStoreInto(s.metrics, s, child)
}

func (s *TrialSplit) SetChildKeys(keys []scope.Attr) error {
	om, err := mapPlaceholders[*MetricResult](s, keys)
	if err != nil {
		return err
	}
	s.metrics = om
	return nil
}

func (s *TrialSplit) SetChildrenFrom(other Node) error {
	o, ok := other.(*TrialSplit)
	if !ok {
		return invariantf("cannot adopt children of %T into a split node", other)
	}
	s.metrics = o.metrics
	return nil
}

func (s *TrialSplit) Shallow() Node {
	out := NewTrialSplit(s.Number, s.Hyperparams.Clone())
	out.Attempt = s.cloneAttempt()
	for m := s.metrics.Oldest(); m != nil; m = m.Next() {
		out.metrics.Set(m.Key, nil)
	}
	return out
}

func (s *TrialSplit) Clone() Node {
	out := NewTrialSplit(s.Number, nil)
	out.Attempt = s.cloneAttempt()
	for m := s.metrics.Oldest(); m != nil; m = m.Next() {
		if m.Value == nil {
			out.metrics.Set(m.Key, nil)
		} else {
			out.metrics.Set(m.Key, m.Value.Clone().(*MetricResult))
		}
	}
	return out
}

func (s *TrialSplit) cloneAttempt() Attempt {
	a := s.Attempt
	a.Hyperparams = s.Hyperparams.Clone()
	return a
}

func (s *TrialSplit) Get(loc scope.Location) (Node, error) { return descend(s, loc) }

// MetricResult is the leaf of the tree: one metric's per-epoch train and
// validation values for a single split.
type MetricResult struct {
	Name             string
	TrainValues      []float64
	ValidationValues []float64
	HigherIsBetter   bool
}

func NewMetricResult(name string, higherIsBetter bool) *MetricResult {
	return &MetricResult{Name: name, HigherIsBetter: higherIsBetter}
}

func (m *MetricResult) Kind() scope.Kind { return scope.MetricResult }
func (m *MetricResult) ID() scope.Attr   { return m.Name }

func (m *MetricResult) SetID(id scope.Attr) error {
	name, ok := id.(string)
	if !ok || name == "" {
		return invariantf("metric id must be a non-empty string, got %v", id)
	}
	m.Name = name
	return nil
}

func (m *MetricResult) Keys() []scope.Attr { return nil }
func (m *MetricResult) Values() []Node     { return nil }

func (m *MetricResult) Child(scope.Attr) (Node, bool) { return nil, false }

func (m *MetricResult) Store(child Node) (scope.Attr, error) {
	return nil, invariantf("metric results are leaves, cannot store a %T", child)
}

func (m *MetricResult) SetChildKeys(keys []scope.Attr) error {
	if len(keys) > 0 {
		return invariantf("metric results are leaves, cannot hold child keys")
	}
	return nil
}

func (m *MetricResult) SetChildrenFrom(other Node) error {
	if _, ok := other.(*MetricResult); !ok {
		return invariantf("cannot adopt children of %T into a metric result", other)
	}
	return nil
}

func (m *MetricResult) Shallow() Node { return m.Clone() }

func (m *MetricResult) Clone() Node {
	out := NewMetricResult(m.Name, m.HigherIsBetter)
	out.TrainValues = append([]float64(nil), m.TrainValues...)
	out.ValidationValues = append([]float64(nil), m.ValidationValues...)
	return out
}

// LastValidation returns the most recent validation value, if any.
func (m *MetricResult) LastValidation() (float64, bool) {
	if len(m.ValidationValues) == 0 {
		return 0, false
	}
	return m.ValidationValues[len(m.ValidationValues)-1], true
}

func (m *MetricResult) Get(loc scope.Location) (Node, error) { return m, nil }

// NewStub constructs an empty node of the kind addressed by loc, carrying
// only the id found at the location's tail. It is the recovery value
// repositories hand out when a load misses.
func NewStub(loc scope.Location) (Node, error) {
	switch loc.Kind() {
	case scope.Root:
		return NewRoot(), nil
	case scope.Project:
		return NewProject(loc.Peek().(string)), nil
	case scope.Client:
		return NewClient(loc.Peek().(string)), nil
	case scope.Round:
		return NewRound(loc.Peek().(int)), nil
	case scope.Trial:
		return NewTrial(loc.Peek().(int), nil), nil
	case scope.TrialSplit:
		return NewTrialSplit(loc.Peek().(int), nil), nil
	case scope.MetricResult:
		return NewMetricResult(loc.Peek().(string), true), nil
	}
	return nil, invariantf("no node kind for location %v", loc)
}
