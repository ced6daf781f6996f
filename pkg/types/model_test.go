package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateModelName(t *testing.T) {
	assert.NoError(t, ValidateModelName(strings.Repeat("a", MaxModelNameLength)))
	assert.Error(t, ValidateModelName(strings.Repeat("a", MaxModelNameLength+1)))
	assert.Error(t, ValidateModelName("  "))
}

func TestSplitOrgModel(t *testing.T) {
	tests := []struct {
		model                string
		tier, org, modelName string
	}{
		{"Pro/deepseek-ai/DeepSeek-R1", "Pro", "deepseek-ai", "DeepSeek-R1"},
		{"Qwen/QwQ-32B", "", "Qwen", "QwQ-32B"},
		{"glm-4", "", "", "glm-4"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			tier, org, name := SplitOrgModel(tt.model)
			assert.Equal(t, tt.tier, tier)
			assert.Equal(t, tt.org, org)
			assert.Equal(t, tt.modelName, name)
		})
	}
}

func TestModelList_IDs(t *testing.T) {
	list := &ModelList{Data: []Model{{ID: "a"}, {ID: "b"}}}
	assert.Equal(t, []string{"a", "b"}, list.IDs())
}
