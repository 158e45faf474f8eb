package inference

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/symptom-checker-server/internal/domain"
)

const systemInstruction = `You assist a symptom intake tool. Given a patient profile, reported symptoms and
medical history, list possible conditions that a clinician might consider.
Respond with JSON only, in the form {"diagnoses":[{"condition":"...","confidence":"High|Medium|Low"}]}.
Order the list from most to least likely. Return an empty list when nothing fits.`

// BuildPrompt renders the request as plain text for a text model. The patient name is not
// included.
func BuildPrompt(in *domain.AnalyzeSymptomsInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Age: %d\n", in.Age)
	fmt.Fprintf(&b, "Gender: %s\n", in.Gender)
	fmt.Fprintf(&b, "Weight: %s\n", formatMeasurement(in.Weight))
	fmt.Fprintf(&b, "Height: %s\n", formatMeasurement(in.Height))

	b.WriteString("Symptoms:\n")
	for _, s := range in.Symptoms {
		fmt.Fprintf(&b, "- %s (%s)\n", s.Name, s.Severity)
	}

	fmt.Fprintf(&b, "Past conditions: %s\n", joinOrNone(in.MedicalHistory.PastConditions))
	fmt.Fprintf(&b, "Current medications: %s\n", joinOrNone(in.MedicalHistory.CurrentMedications))

	if in.Image != nil {
		b.WriteString("An image of the affected area is attached.\n")
	}
	return b.String()
}

func formatMeasurement(m *domain.Measurement) string {
	if m == nil {
		return "not provided"
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64) + " " + m.Unit
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return domain.NoneReported
	}
	return strings.Join(items, ", ")
}
