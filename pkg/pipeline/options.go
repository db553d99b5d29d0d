package pipeline

// Option configures a pipeline at construction time.
type Option func(p *Pipeline)

// WithDescription sets the pipeline description stored by the service.
func WithDescription(description string) Option {
	return func(p *Pipeline) {
		p.description = description
	}
}

// WithExperiment pins executions to an experiment and trial instead of the
// default execution-derived names. Either value may be a literal or a Ref.
func WithExperiment(experimentName, trialName any) Option {
	return func(p *Pipeline) {
		p.experimentName = experimentName
		p.trialName = trialName
	}
}

// Description returns the pipeline description.
func (p *Pipeline) Description() string { return p.description }
