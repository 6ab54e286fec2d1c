package theory

import (
	"fmt"
	"strings"
)

// promptVersion tags every persisted pipeline_runtime entry so a later
// review of saved theories can tell which prompt generation produced them.
const promptVersion = "v1"

// CentralCategoryPayload is the input to the "central_category" step.
type CentralCategoryPayload struct {
	Categories []CategorySummary
	Network    NetworkSummary
}

type CategorySummary struct {
	ID         string
	Name       string
	Definition string
}

type NetworkSummary struct {
	CoOccurrences []CoOccurrenceSummary
}

type CoOccurrenceSummary struct {
	CategoryA string
	CategoryB string
	Count     int
}

// ParadigmPayload is the input to the "paradigm" step.
type ParadigmPayload struct {
	CentralCategory CategorySummary
	OtherCategories []CategorySummary
	Evidence        []EvidenceSnippet
}

type EvidenceSnippet struct {
	FragmentID string
	CategoryID string
	Text       string
}

// SaturationPayload is the input to the "saturation" step.
type SaturationPayload struct {
	ParadigmJSON string
}

// RepairPayload is the input to every "repair_*" step.
type RepairPayload struct {
	Instruction  string
	ParadigmJSON string
	EvidenceJSON string
}

// buildPrompt renders the (system, user) pair for one reasoning step. The
// template key selects domain vocabulary so a central-category prompt for an
// education project reads differently than one for market research, while
// the underlying coherence rules stay identical.
func buildPrompt(step, templateKey string, payload any) (system, user string) {
	t := templateFor(templateKey)

	switch step {
	case "central_category":
		p := payload.(CentralCategoryPayload)
		return buildCentralCategoryPrompt(t, p)
	case "paradigm":
		p := payload.(ParadigmPayload)
		return buildParadigmPrompt(t, p)
	case "saturation":
		p := payload.(SaturationPayload)
		return buildSaturationPrompt(t, p)
	case "repair_consequences", "repair_propositions", "repair_context", "repair_judge_findings":
		p := payload.(RepairPayload)
		return buildRepairPrompt(t, p)
	default:
		return "", ""
	}
}

func buildCentralCategoryPrompt(t domainTemplate, p CentralCategoryPayload) (string, string) {
	system := fmt.Sprintf(
		"You are analysing coded qualitative data about %s. "+
			"Identify the single central category that best integrates the other categories, "+
			"weighing %s, and using %s as your evidence for salience. "+
			"Respond with strict JSON: {\"selected_central_category\":string,\"evaluation\":[{\"category\":string,\"fit_score\":number,\"reasoning\":string}],\"detailed_reasoning\":string}. %s",
		t.Actors, t.CriticalDimensions, t.Metrics, t.ExtraInstructions,
	)

	var cats strings.Builder
	for _, c := range p.Categories {
		fmt.Fprintf(&cats, "- %s: %s\n", c.Name, c.Definition)
	}
	var cooc strings.Builder
	for _, co := range p.Network.CoOccurrences {
		fmt.Fprintf(&cooc, "- %s <-> %s (count=%d)\n", co.CategoryA, co.CategoryB, co.Count)
	}

	user := fmt.Sprintf("Categories:\n%s\nCategory co-occurrence:\n%s", cats.String(), cooc.String())
	return system, user
}

func buildParadigmPrompt(t domainTemplate, p ParadigmPayload) (string, string) {
	system := fmt.Sprintf(
		"You are building a Straussian paradigm model about %s, central category %q. "+
			"Populate conditions, context, intervening_conditions, actions, consequences, and propositions. "+
			"Every item you place in an evidence-bearing section must carry evidence_ids drawn only from the fragment ids given below. "+
			"Any construct you name in a proposition must also appear as a category in conditions, actions, consequences, context, or intervening_conditions — never introduce a construct only in a proposition. "+
			"Consequences must be tagged with type (material, social, or institutional) and horizon (corto_plazo or largo_plazo); cover as many of the six combinations as the evidence supports. "+
			"Respond with strict JSON: {\"selected_central_category\":string,\"conditions\":[{\"name\":string,\"evidence_ids\":[string]}],\"context\":[...],\"intervening_conditions\":[...],\"actions\":[...],\"consequences\":[{\"name\":string,\"evidence_ids\":[string],\"type\":string,\"horizon\":string}],\"propositions\":[{\"text\":string,\"evidence_ids\":[string]}],\"confidence_score\":number}. %s",
		t.Actors, p.CentralCategory.Name, t.ExtraInstructions,
	)

	var other strings.Builder
	for _, c := range p.OtherCategories {
		fmt.Fprintf(&other, "- %s: %s\n", c.Name, c.Definition)
	}
	var evidence strings.Builder
	for _, e := range p.Evidence {
		fmt.Fprintf(&evidence, "- [%s] (%s) %s\n", e.FragmentID, e.CategoryID, e.Text)
	}

	user := fmt.Sprintf("Other categories:\n%s\nEvidence fragments:\n%s", other.String(), evidence.String())
	return system, user
}

func buildSaturationPrompt(t domainTemplate, p SaturationPayload) (string, string) {
	system := "You assess theoretical saturation for a grounded-theory paradigm. " +
		"Respond with strict JSON: {\"readiness_score\":number between 0 and 1,\"identified_gaps\":[string],\"theoretical_sampling_plan\":string}."
	user := fmt.Sprintf("Paradigm:\n%s", p.ParadigmJSON)
	return system, user
}

func buildRepairPrompt(t domainTemplate, p RepairPayload) (string, string) {
	system := "You repair one specific defect in an existing grounded-theory paradigm without altering anything else. " +
		"Return strictly-scoped JSON containing only the keys you are asked to fix."
	user := fmt.Sprintf("Instruction: %s\n\nCurrent paradigm:\n%s\n\nAvailable evidence:\n%s", p.Instruction, p.ParadigmJSON, p.EvidenceJSON)
	return system, user
}
