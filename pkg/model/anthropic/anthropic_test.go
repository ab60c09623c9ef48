package anthropic_test

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"

	"github.com/elvinasadov/agroflow/pkg/model/anthropic"
)

func TestNewModel_Defaults(t *testing.T) {
	m := anthropic.NewModel()

	info := m.Info()
	assert.Equal(t, string(sdk.ModelClaudeSonnet4_20250514), info.Name)
	assert.Equal(t, "anthropic", info.Provider)
	assert.True(t, info.SupportsVision)
}

func TestNewModel_Overrides(t *testing.T) {
	m := anthropic.NewModel(func(o *anthropic.Options) {
		o.Model = sdk.Model("claude-opus-4-1-20250805")
	})

	assert.Equal(t, "claude-opus-4-1-20250805", m.Info().Name)
}
