package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingConfig struct {
	calls       []string
	configDir   string
	validateErr error
}

func (r *recordingConfig) ApplyDefaults()     { r.calls = append(r.calls, "defaults") }
func (r *recordingConfig) ApplyEnvOverrides() { r.calls = append(r.calls, "env") }

func (r *recordingConfig) ResolvePaths(configDir string) {
	r.calls = append(r.calls, "paths")
	r.configDir = configDir
}

func (r *recordingConfig) Validate() error {
	r.calls = append(r.calls, "validate")
	return r.validateErr
}

func TestApplyServiceConfigs_Order(t *testing.T) {
	a := &recordingConfig{}
	b := &recordingConfig{}

	assert.NoError(t, ApplyServiceConfigs("config", a, b))
	for _, c := range []*recordingConfig{a, b} {
		assert.Equal(t, []string{"defaults", "env", "paths", "validate"}, c.calls)
		assert.Equal(t, "config", c.configDir)
	}
}

func TestApplyServiceConfigs_StopsOnValidationError(t *testing.T) {
	a := &recordingConfig{validateErr: assert.AnError}
	b := &recordingConfig{}

	err := ApplyServiceConfigs("config", a, b)
	assert.Equal(t, assert.AnError, err)
	assert.Empty(t, b.calls)
}

func TestApplyServiceConfigs_EmptyList(t *testing.T) {
	assert.NoError(t, ApplyServiceConfigs("config"))
}
