package pipeline

import (
	"encoding/json"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/modelrocket/sagerun/internal/store"
	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

const definitionVersion = "2020-12-01"

// Pipeline accumulates parameters and steps and renders the definition
// document submitted to the pipeline service.
type Pipeline struct {
	name        string
	description string

	params     []Parameter
	paramNames map[string]struct{}

	steps  []Step
	index  map[string]Step
	branch map[string]struct{}

	store store.CustomStore[string, string]
	graph graph.Graph[string, string]

	experimentName any
	trialName      any
}

// New creates an empty pipeline.
func New(name string, opts ...Option) (*Pipeline, error) {
	if name == "" {
		return nil, errors.Wrap(ErrEmptyName, "pipeline")
	}

	st := store.New()
	pipe := &Pipeline{
		name:       name,
		paramNames: make(map[string]struct{}),
		index:      make(map[string]Step),
		branch:     make(map[string]struct{}),
		store:      st,
		graph:      graph.NewWithStore(graph.StringHash, st, graph.Directed(), graph.PreventCycles()),

		experimentName: ExecutionRef("PipelineName"),
		trialName:      ExecutionRef("PipelineExecutionId"),
	}

	for _, opt := range opts {
		opt(pipe)
	}

	return pipe, nil
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Parameters returns the declared parameters in insertion order.
func (p *Pipeline) Parameters() []Parameter { return p.params }

// AddParameter declares a pipeline parameter.
func (p *Pipeline) AddParameter(param Parameter) error {
	if err := param.validate(); err != nil {
		return err
	}

	if _, ok := p.paramNames[param.Name]; ok {
		return errors.Wrap(ErrDuplicateParameter, param.Name)
	}

	p.paramNames[param.Name] = struct{}{}
	p.params = append(p.params, param)

	return nil
}

// AddParameters declares several parameters, stopping at the first error.
func (p *Pipeline) AddParameters(params ...Parameter) error {
	for _, param := range params {
		if err := p.AddParameter(param); err != nil {
			return err
		}
	}

	return nil
}

// AddStep adds a top-level step. Condition branch steps are registered
// through their condition step, not with AddStep.
func (p *Pipeline) AddStep(step Step) error {
	if err := p.register(step); err != nil {
		return err
	}

	p.steps = append(p.steps, step)

	if cond, ok := step.(*ConditionStep); ok {
		for _, branchStep := range cond.Branches() {
			err := p.registerBranch(cond.Name, branchStep)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// AddSteps adds several top-level steps, stopping at the first error.
func (p *Pipeline) AddSteps(steps ...Step) error {
	for _, step := range steps {
		if err := p.AddStep(step); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) register(step Step) error {
	name := step.StepName()
	if name == "" {
		return ErrEmptyName
	}

	if _, ok := p.index[name]; ok {
		if _, isBranch := p.branch[name]; isBranch {
			return errors.Wrap(ErrBranchStepConflict, name)
		}

		return errors.Wrap(ErrDuplicateStep, name)
	}

	err := p.graph.AddVertex(name)
	if err != nil {
		return errors.Wrapf(err, "unable to add step %s", name)
	}

	p.index[name] = step

	for _, dep := range step.Dependencies() {
		if _, ok := p.index[dep]; !ok {
			return errors.Wrapf(ErrUnknownDependency, "step %s depends on %s", name, dep)
		}

		err := p.graph.AddEdge(dep, name)
		if err != nil {
			if errors.Is(err, graph.ErrEdgeCreatesCycle) {
				return errors.Wrapf(ErrCycle, "step %s depends on %s", name, dep)
			}

			return errors.Wrapf(err, "unable to link %s to %s", dep, name)
		}
	}

	return nil
}

func (p *Pipeline) registerBranch(conditionName string, step Step) error {
	err := p.register(step)
	if err != nil {
		return err
	}

	p.branch[step.StepName()] = struct{}{}

	err = p.graph.AddEdge(conditionName, step.StepName())
	if err != nil {
		return errors.Wrapf(err, "unable to link branch %s to condition %s", step.StepName(), conditionName)
	}

	return nil
}

// StepInfos returns the declared steps, branch steps included, as shared
// metadata for the drawer and the watcher.
func (p *Pipeline) StepInfos() []model.StepInfo {
	infos := make([]model.StepInfo, 0, len(p.index))
	appendInfo := func(step Step) {
		infos = append(infos, model.StepInfo{Name: step.StepName(), Kind: step.Kind()})
	}

	for _, step := range p.steps {
		appendInfo(step)

		if cond, ok := step.(*ConditionStep); ok {
			for _, branchStep := range cond.Branches() {
				appendInfo(branchStep)
			}
		}
	}

	return infos
}

// Links returns all dependency edges as (parent, child) pairs.
func (p *Pipeline) Links() ([][2]string, error) {
	edges, err := p.store.ListEdges()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list edges")
	}

	links := make([][2]string, 0, len(edges))
	for _, edge := range edges {
		links = append(links, [2]string{edge.Source, edge.Target})
	}

	return links, nil
}

type definitionDoc struct {
	Version                  string         `json:"Version"`
	Metadata                 map[string]any `json:"Metadata"`
	Parameters               []Parameter    `json:"Parameters"`
	PipelineExperimentConfig map[string]any `json:"PipelineExperimentConfig"`
	Steps                    []stepDoc      `json:"Steps"`
}

// Definition renders the definition document. Steps and parameters keep
// their insertion order so repeated renders are byte-identical.
func (p *Pipeline) Definition() ([]byte, error) {
	if len(p.steps) == 0 {
		return nil, errors.Wrap(ErrNoSteps, p.name)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	docs, err := documents(p.steps)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to render steps of pipeline %s", p.name)
	}

	doc := definitionDoc{
		Version:    definitionVersion,
		Metadata:   map[string]any{},
		Parameters: p.params,
		PipelineExperimentConfig: map[string]any{
			"ExperimentName": p.experimentName,
			"TrialName":      p.trialName,
		},
		Steps: docs,
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to marshal definition of pipeline %s", p.name)
	}

	return raw, nil
}

// Validate checks cross-step consistency: every property file read by a
// condition must be declared by a step of this pipeline.
func (p *Pipeline) Validate() error {
	declared := make(map[string]struct{})

	for name, step := range p.index {
		proc, ok := step.(*ProcessingStep)
		if !ok {
			continue
		}

		for _, file := range proc.PropertyFiles {
			declared[file.Ref(name).Path()] = struct{}{}
		}
	}

	for _, step := range p.index {
		cond, ok := step.(*ConditionStep)
		if !ok {
			continue
		}

		for _, condition := range cond.Conditions {
			for _, side := range []any{condition.Left, condition.Right} {
				get, ok := side.(JSONGet)
				if !ok {
					continue
				}

				if _, ok := declared[get.PropertyFile.Path()]; !ok {
					return errors.Errorf("condition step %s reads undeclared property file %s", cond.Name, get.PropertyFile.Path())
				}
			}
		}
	}

	return nil
}
