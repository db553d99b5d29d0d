package drawer

import (
	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

// Drawer renders a pipeline definition graph.
type Drawer interface {
	// AddStep adds a step to the graph.
	AddStep(stepName string) error
	// AddLink adds a dependency edge between parent and child steps.
	AddLink(parentStepName, childStepName string) error
	// SetStatus labels a step with its observed execution status and timing.
	SetStatus(info model.StepInfo) error
	// Draw writes the graph to the output file.
	Draw() error
}
