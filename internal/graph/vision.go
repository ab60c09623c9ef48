package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/elvinasadov/agroflow/pkg/domain"
	"github.com/elvinasadov/agroflow/pkg/model"
)

const visionSystemPrompt = `You are an agronomy advisor analyzing crop photos.
Describe what the image shows, identify visible problems (disease, pests,
nutrient deficiency, water stress) and recommend concrete next actions.
Answer in the language the farmer writes in.`

const visionUploadPrompt = "Şəkil əlavə olunmayıb. Zəhmət olmasa təhlil üçün bitkinin şəklini yükləyin. " +
	"(No image attached. Please upload a photo of the crop to analyze.)"

// Vision analyzes uploaded crop photos with a multimodal model. An empty
// artifact list is not an error: the node answers with an upload prompt.
type Vision struct {
	model  model.Model
	logger *slog.Logger
}

// NewVision creates the image-analysis node.
func NewVision(m model.Model, logger *slog.Logger) *Vision {
	return &Vision{model: m, logger: logger}
}

// Name implements Node.
func (v *Vision) Name() string { return NodeVision }

// Run implements Node.
func (v *Vision) Run(ctx context.Context, st *domain.ExecutionState, ov Overrides) (domain.Delta, error) {
	if len(st.UploadedArtifacts) == 0 {
		return domain.ResponseDelta(visionUploadPrompt), nil
	}

	if !v.model.Info().SupportsVision {
		return domain.Delta{}, fmt.Errorf("configured model %q does not support image input", v.model.Info().Name)
	}

	input := st.CurrentInput
	if input == "" {
		input = "Bu şəkildə nə görürsən? Problemi təhlil et."
	}

	text, err := v.model.Generate(ctx, model.Request{
		System: visionSystemPrompt,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: input},
		},
		Images:      st.UploadedArtifacts,
		Temperature: ov.Temperature,
		MaxTokens:   ov.MaxTokens,
	})
	if err != nil {
		return domain.Delta{}, fmt.Errorf("image analysis failed: %w", err)
	}

	return domain.ResponseDelta(text), nil
}
