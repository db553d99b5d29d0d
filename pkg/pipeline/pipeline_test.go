package pipeline_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrocket/sagerun/pkg/pipeline"
	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

func processingStep(name string, deps ...string) *pipeline.ProcessingStep {
	return &pipeline.ProcessingStep{
		Name: name,
		Processor: pipeline.Processor{
			ImageURI:      "123.dkr.ecr.us-east-1.amazonaws.com/sklearn:1.0",
			InstanceType:  "ml.c5.xlarge",
			InstanceCount: 1,
			VolumeSizeGB:  30,
			RoleARN:       "arn:aws:iam::123:role/pipeline",
		},
		DependsOn: deps,
	}
}

func TestNewEmptyName(t *testing.T) {
	t.Parallel()

	_, err := pipeline.New("")
	require.ErrorIs(t, err, pipeline.ErrEmptyName)
}

func TestAddParameterDuplicate(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New("test")
	require.NoError(t, err)

	require.NoError(t, pipe.AddParameter(pipeline.StringParameter("InstanceType", "ml.c5.xlarge")))
	err = pipe.AddParameter(pipeline.IntegerParameter("InstanceType", 1))
	assert.ErrorIs(t, err, pipeline.ErrDuplicateParameter)
}

func TestAddParameterBadDefault(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New("test")
	require.NoError(t, err)

	err = pipe.AddParameter(pipeline.Parameter{
		Name:         "Epochs",
		Type:         pipeline.ParameterTypeInteger,
		DefaultValue: "three",
	})
	assert.ErrorIs(t, err, pipeline.ErrParameterDefault)
}

func TestAddStepDuplicate(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New("test")
	require.NoError(t, err)

	require.NoError(t, pipe.AddStep(processingStep("process")))
	err = pipe.AddStep(processingStep("process"))
	assert.ErrorIs(t, err, pipeline.ErrDuplicateStep)
}

func TestAddStepUnknownDependency(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New("test")
	require.NoError(t, err)

	err = pipe.AddStep(processingStep("evaluate", "train"))
	assert.ErrorIs(t, err, pipeline.ErrUnknownDependency)
}

func TestBranchStepConflict(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New("test")
	require.NoError(t, err)

	register := &pipeline.RegisterModelStep{
		Name:              "register",
		ModelPackageGroup: "models",
		ApprovalStatus:    "Approved",
	}
	gate := &pipeline.ConditionStep{
		Name:       "gate",
		Conditions: []pipeline.Condition{{Type: pipeline.ConditionGreaterThanOrEqualTo, Left: 1, Right: 0}},
		IfSteps:    []pipeline.Step{register},
	}

	require.NoError(t, pipe.AddStep(gate))
	err = pipe.AddStep(register)
	assert.ErrorIs(t, err, pipeline.ErrBranchStepConflict)
}

func TestDefinitionNoSteps(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New("test")
	require.NoError(t, err)

	_, err = pipe.Definition()
	assert.ErrorIs(t, err, pipeline.ErrNoSteps)
}

func TestDefinitionDocument(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New("test")
	require.NoError(t, err)

	require.NoError(t, pipe.AddParameters(
		pipeline.StringParameter("InstanceType", "ml.c5.xlarge"),
		pipeline.FloatParameter("MinAccuracy", 0.3),
	))

	first := processingStep("process")
	second := processingStep("evaluate", "process")

	require.NoError(t, pipe.AddSteps(first, second))

	raw, err := pipe.Definition()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "2020-12-01", doc["Version"])

	params, ok := doc["Parameters"].([]any)
	require.True(t, ok)
	require.Len(t, params, 2)
	assert.Equal(t, map[string]any{
		"Name": "InstanceType", "Type": "String", "DefaultValue": "ml.c5.xlarge",
	}, params[0])

	steps, ok := doc["Steps"].([]any)
	require.True(t, ok)
	require.Len(t, steps, 2)

	evaluate, ok := steps[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "evaluate", evaluate["Name"])
	assert.Equal(t, "Processing", evaluate["Type"])
	assert.Equal(t, []any{"process"}, evaluate["DependsOn"])

	experiment, ok := doc["PipelineExperimentConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"Get": "Execution.PipelineName"}, experiment["ExperimentName"])
}

func TestDefinitionDeterministic(t *testing.T) {
	t.Parallel()

	build := func() []byte {
		pipe, err := pipeline.New("test")
		require.NoError(t, err)
		require.NoError(t, pipe.AddParameter(pipeline.IntegerParameter("Epochs", 3)))
		require.NoError(t, pipe.AddSteps(processingStep("process"), processingStep("evaluate", "process")))

		raw, err := pipe.Definition()
		require.NoError(t, err)

		return raw
	}

	assert.Equal(t, build(), build())
}

func TestValidateUndeclaredPropertyFile(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New("test")
	require.NoError(t, err)

	gate := &pipeline.ConditionStep{
		Name: "gate",
		Conditions: []pipeline.Condition{{
			Type:  pipeline.ConditionGreaterThanOrEqualTo,
			Left:  pipeline.JSONGet{PropertyFile: pipeline.StepRef("evaluate", "PropertyFiles.Report"), Path: "metrics.accuracy.value"},
			Right: 0.5,
		}},
	}

	require.NoError(t, pipe.AddStep(processingStep("evaluate")))
	require.NoError(t, pipe.AddStep(gate))

	_, err = pipe.Definition()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared property file")
}

func TestValidateDeclaredPropertyFile(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New("test")
	require.NoError(t, err)

	report := pipeline.PropertyFile{PropertyFileName: "Report", OutputName: "metrics", FilePath: "evaluation.json"}

	evaluate := processingStep("evaluate")
	evaluate.Outputs = []pipeline.ProcessingOutput{{Name: "metrics", Source: "/opt/ml/processing/output", Destination: "s3://bucket/out"}}
	evaluate.PropertyFiles = []pipeline.PropertyFile{report}

	gate := &pipeline.ConditionStep{
		Name: "gate",
		Conditions: []pipeline.Condition{{
			Type:  pipeline.ConditionGreaterThanOrEqualTo,
			Left:  pipeline.JSONGet{PropertyFile: report.Ref("evaluate"), Path: "metrics.accuracy.value"},
			Right: 0.5,
		}},
		DependsOn: []string{"evaluate"},
	}

	require.NoError(t, pipe.AddSteps(evaluate, gate))

	_, err = pipe.Definition()
	assert.NoError(t, err)
}

func TestStepInfosIncludeBranches(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New("test")
	require.NoError(t, err)

	register := &pipeline.RegisterModelStep{Name: "register", ModelPackageGroup: "models", ApprovalStatus: "Approved"}
	gate := &pipeline.ConditionStep{
		Name:       "gate",
		Conditions: []pipeline.Condition{{Type: pipeline.ConditionLessThan, Left: 0, Right: 1}},
		IfSteps:    []pipeline.Step{register},
	}

	require.NoError(t, pipe.AddSteps(processingStep("process"), gate))

	infos := pipe.StepInfos()
	require.Len(t, infos, 3)

	names := make(map[string]model.StepKind, len(infos))
	for _, info := range infos {
		names[info.Name] = info.Kind
	}

	assert.Equal(t, model.ProcessingStepKind, names["process"])
	assert.Equal(t, model.ConditionStepKind, names["gate"])
	assert.Equal(t, model.RegisterModelStepKind, names["register"])
}

func TestLinksIncludeBranchEdges(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New("test")
	require.NoError(t, err)

	register := &pipeline.RegisterModelStep{Name: "register", ModelPackageGroup: "models", ApprovalStatus: "Approved"}
	gate := &pipeline.ConditionStep{
		Name:       "gate",
		Conditions: []pipeline.Condition{{Type: pipeline.ConditionLessThan, Left: 0, Right: 1}},
		IfSteps:    []pipeline.Step{register},
		DependsOn:  []string{"process"},
	}

	require.NoError(t, pipe.AddSteps(processingStep("process"), gate))

	links, err := pipe.Links()
	require.NoError(t, err)
	assert.ElementsMatch(t, [][2]string{
		{"process", "gate"},
		{"gate", "register"},
	}, links)
}
