package pipeline

import (
	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

// Step is a declarative pipeline step. Implementations render themselves into
// the vendor step document; they never execute anything locally.
type Step interface {
	// StepName returns the unique name of the step.
	StepName() string
	// Kind returns the vendor step type.
	Kind() model.StepKind
	// Dependencies returns the names of the steps this step depends on, in
	// addition to any data dependencies implied by references.
	Dependencies() []string

	document() (stepDoc, error)
}

// stepDoc is the wire form of a step inside the definition document.
type stepDoc struct {
	Name          string         `json:"Name"`
	Type          model.StepKind `json:"Type"`
	DependsOn     []string       `json:"DependsOn,omitempty"`
	Arguments     any            `json:"Arguments"`
	PropertyFiles []PropertyFile `json:"PropertyFiles,omitempty"`
}

// PropertyFile declares a JSON file written by a processing step output, so
// later steps can read values out of it with JSONGet.
type PropertyFile struct {
	PropertyFileName string `json:"PropertyFileName"`
	OutputName       string `json:"OutputName"`
	FilePath         string `json:"FilePath"`
}

// Ref references the property file from a condition step. The owning step
// name must be the step that declares the file.
func (f PropertyFile) Ref(stepName string) Ref {
	return StepRef(stepName, "PropertyFiles."+f.PropertyFileName)
}

func documents(steps []Step) ([]stepDoc, error) {
	docs := make([]stepDoc, 0, len(steps))

	for _, step := range steps {
		doc, err := step.document()
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}
