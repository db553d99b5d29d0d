package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrocket/sagerun/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sagerun.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
RoleARN: arn:aws:iam::123:role/pipeline
Bucket: pipeline-bucket
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "review-classifier", cfg.PipelineName)
	assert.Equal(t, 30*time.Second, cfg.PollInterval.Duration())
	assert.Equal(t, 2*time.Hour, cfg.WatchTimeout.Duration())
	assert.InDelta(t, 0.3, cfg.MinAccuracy, 1e-9)
	assert.True(t, cfg.Hyperparameters.FreezeBaseLayers)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
RoleARN: arn:aws:iam::123:role/pipeline
Bucket: pipeline-bucket
Region: eu-west-1
MinAccuracy: 0.8
PollInterval: 10s
Hyperparameters:
  Epochs: 3
  LearningRate: 0.0001
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.InDelta(t, 0.8, cfg.MinAccuracy, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.PollInterval.Duration())
	assert.Equal(t, 3, cfg.Hyperparameters.Epochs)
	assert.InDelta(t, 0.0001, cfg.Hyperparameters.LearningRate, 1e-12)

	// Untouched defaults survive a partial file.
	assert.Equal(t, 128, cfg.Hyperparameters.TrainBatchSize)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to read config")
}

func TestLoadEmptyPathRequiresFields(t *testing.T) {
	t.Parallel()

	// Defaults alone cannot supply the role and bucket.
	_, err := config.Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingField)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() config.Config {
		cfg := config.Default()
		cfg.RoleARN = "arn:aws:iam::123:role/pipeline"
		cfg.Bucket = "pipeline-bucket"

		return cfg
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Bucket = ""
	assert.ErrorIs(t, cfg.Validate(), config.ErrMissingField)

	cfg = valid()
	cfg.MinAccuracy = 1.5
	assert.ErrorIs(t, cfg.Validate(), config.ErrOutOfRange)

	cfg = valid()
	cfg.TrainSplit = 0.95
	cfg.ValidationSplit = 0.1
	assert.ErrorIs(t, cfg.Validate(), config.ErrOutOfRange)

	cfg = valid()
	cfg.TrainingInstanceCount = 0
	assert.ErrorIs(t, cfg.Validate(), config.ErrOutOfRange)
}

func TestPrefixes(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Bucket = "pipeline-bucket"

	assert.Equal(t, "reviews/data/", cfg.DataPrefix())
	assert.Equal(t, "reviews/code/", cfg.ScriptPrefix())
	assert.Equal(t, "s3://pipeline-bucket/reviews/output", cfg.OutputPath())
}

func TestDurationRoundTrip(t *testing.T) {
	t.Parallel()

	d := config.Duration(90 * time.Second)
	assert.Equal(t, "1m30s", d.String())

	raw, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(raw))

	var parsed config.Duration
	require.NoError(t, parsed.UnmarshalJSON([]byte(`"2h"`)))
	assert.Equal(t, 2*time.Hour, parsed.Duration())

	assert.Error(t, parsed.UnmarshalJSON([]byte(`"soon"`)))
	assert.Error(t, parsed.UnmarshalJSON([]byte(`30`)))
}
