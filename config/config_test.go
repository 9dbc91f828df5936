package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jurismemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 6, cfg.Retrieval.TopK)
	assert.Equal(t, 2, cfg.Retrieval.MaxPerSource)
	assert.Equal(t, 0.7, cfg.Retrieval.MatchThreshold)
	assert.Equal(t, 50, cfg.Retrieval.MatchCount)
	assert.Equal(t, "cosine", cfg.Evaluation.Metric)
	assert.Equal(t, 0.70, cfg.Evaluation.Threshold)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromYAMLKeepsUnsetDefaults(t *testing.T) {
	path := writeConfig(t, `
port: "9090"
retrieval:
  top_k: 10
evaluation:
  metric: euclidean
  threshold: 0.4
tracing:
  exporter: stdout
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, 2, cfg.Retrieval.MaxPerSource)
	assert.Equal(t, "euclidean", cfg.Evaluation.Metric)
	assert.Equal(t, 0.4, cfg.Evaluation.Threshold)
	assert.Equal(t, "dutch", cfg.Evaluation.Language)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "evaluation:\n  metric: dot\n")
	t.Setenv("SIMILARITY_METRIC", "cosine")
	t.Setenv("TOP_K", "3")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DEEP_INFRA_API_TOKEN", "secret")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "cosine", cfg.Evaluation.Metric)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "secret", cfg.Embedding.APIToken)
}

func TestLoadFromRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{"unknown metric", "evaluation:\n  metric: manhattan\n", nil},
		{"threshold above one", "evaluation:\n  threshold: 1.5\n", nil},
		{"unsupported sentence language", "evaluation:\n  language: klingon\n", nil},
		{"zero top k", "retrieval:\n  top_k: 0\n", nil},
		{"unknown storage", "storage:\n  type: ftp\n", nil},
		{"s3 without bucket", "storage:\n  type: s3\n", nil},
		{"non numeric env", "", map[string]string{"TOP_K": "many"}},
		{"malformed yaml", "retrieval: [", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeConfig(t, tt.yaml)
			}

			_, err := LoadFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSettingsConversions(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("AWS_S3_BUCKET", "reports")
	t.Setenv("AWS_ACCESS_KEY_ID", "key")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	sc := cfg.StorageSettings()
	assert.Equal(t, "s3", string(sc.Type))
	assert.Equal(t, "reports", sc.S3Bucket)
	assert.Equal(t, "key", sc.AWSAccessKey)
	assert.Equal(t, "evaluations", sc.Prefix)

	tc := cfg.TracingSettings("jurismemo")
	assert.Equal(t, "jurismemo", tc.ServiceName)
	assert.Equal(t, "none", tc.Exporter)
}
