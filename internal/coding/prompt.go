package coding

import (
	"fmt"
	"strings"

	"groundedtheory.dev/core/internal/model"
)

// buildCodingPrompt renders the system/user turn for one fragment's
// classification call. The system prompt carries the label contract and a
// snapshot of codes already known to the project so the model reuses labels
// instead of inventing near-duplicates.
func buildCodingPrompt(project model.Project, fragment model.Fragment, existingCodes []model.Code) (system, user string) {
	var known strings.Builder
	if len(existingCodes) == 0 {
		known.WriteString("(none yet)")
	} else {
		for i, c := range existingCodes {
			if i > 0 {
				known.WriteString("; ")
			}
			known.WriteString(c.Label)
		}
	}

	system = fmt.Sprintf(
		"You are a qualitative coding assistant performing open coding in the %s domain vocabulary. "+
			"Given one interview fragment, extract the analytic codes it illustrates. "+
			"Reuse an existing code label exactly when the fragment clearly reiterates it instead of inventing a near-duplicate. "+
			"Respond with strict JSON: {\"extracted_codes\":[{\"label\":string,\"definition\":string,\"confidence\":number between 0 and 1,\"evidence_text\":string copied verbatim from the fragment}]}. "+
			"Return an empty array when the fragment carries no codable content.\n\nKnown codes: %s",
		domainLabel(project.DomainTemplate), known.String(),
	)

	user = fmt.Sprintf("Fragment:\n%s", fragment.Text)
	return system, user
}

func domainLabel(template string) string {
	if template == "" {
		return "generic"
	}
	return template
}
