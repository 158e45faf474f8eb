package service

import (
	"fmt"
	"strings"

	"github.com/symptom-checker-server/internal/domain"
)

// Renderer maps gateway output to the ordered view model. It never re-sorts; the first
// item is whatever the gateway returned first.
type Renderer struct{}

// NewRenderer creates a new result renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render classifies each diagnosis and keeps gateway order. An empty or nil response
// renders the single "no conditions" state.
func (r *Renderer) Render(output *domain.AnalyzeSymptomsOutput) *domain.RenderedResult {
	if output == nil || len(output.Diagnoses) == 0 {
		return &domain.RenderedResult{
			State:      domain.RenderNoConditions,
			Items:      []domain.RenderedDiagnosis{},
			Message:    domain.NoConditionsMessage,
			Disclaimer: domain.MedicalDisclaimer,
		}
	}

	items := make([]domain.RenderedDiagnosis, 0, len(output.Diagnoses))
	for i, d := range output.Diagnoses {
		tier := domain.ParseConfidence(d.Confidence)
		items = append(items, domain.RenderedDiagnosis{
			Rank:       i + 1,
			Condition:  d.Condition,
			Confidence: strings.TrimSpace(d.Confidence),
			Tier:       tier,
			Visual:     tier.Visual(),
			Badge:      tier.Badge(),
			Icon:       tier.Icon(),
		})
	}

	return &domain.RenderedResult{
		State:      domain.RenderResults,
		Items:      items,
		Disclaimer: domain.MedicalDisclaimer,
	}
}

// RenderText formats a rendered result as plain text.
func (r *Renderer) RenderText(result *domain.RenderedResult) string {
	var b strings.Builder

	if result == nil || result.State == domain.RenderNoConditions {
		b.WriteString(domain.NoConditionsMessage)
	} else {
		b.WriteString("Potential conditions:\n")
		for _, item := range result.Items {
			fmt.Fprintf(&b, "%d. %s (%s confidence)\n", item.Rank, item.Condition, item.Tier)
		}
	}

	b.WriteString("\n")
	b.WriteString(domain.MedicalDisclaimer)
	return b.String()
}
