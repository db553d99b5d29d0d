package drawer_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrocket/sagerun/pkg/pipeline/drawer"
	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

func TestDrawStatusGraph(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "pipeline.dot")
	d := drawer.NewDOTDrawer(out)

	for _, name := range []string{"process", "train", "gate"} {
		require.NoError(t, d.AddStep(name))
	}

	require.NoError(t, d.AddLink("process", "train"))
	require.NoError(t, d.AddLink("train", "gate"))

	start := time.Now().Add(-5 * time.Minute)
	require.NoError(t, d.SetStatus(model.StepInfo{
		Name:      "train",
		Status:    model.StepStatusSucceeded,
		StartedAt: start,
		EndedAt:   start.Add(3 * time.Minute),
	}))

	require.NoError(t, d.Draw())

	raw, err := os.ReadFile(out)
	require.NoError(t, err)

	content := string(raw)
	assert.Contains(t, content, "digraph")
	assert.Contains(t, content, `"process" -> "train"`)
	assert.Contains(t, content, "#00c800")
	assert.Contains(t, content, "Succeeded, 3m0s")
}

func TestSetStatusUnknownStep(t *testing.T) {
	t.Parallel()

	d := drawer.NewDOTDrawer(filepath.Join(t.TempDir(), "pipeline.dot"))

	err := d.SetStatus(model.StepInfo{Name: "missing", Status: model.StepStatusFailed})
	assert.Error(t, err)
}

func TestAddLinkUnknownVertex(t *testing.T) {
	t.Parallel()

	d := drawer.NewDOTDrawer(filepath.Join(t.TempDir(), "pipeline.dot"))

	require.NoError(t, d.AddStep("process"))
	assert.Error(t, d.AddLink("process", "missing"))
}
