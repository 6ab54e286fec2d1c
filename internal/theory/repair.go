package theory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"groundedtheory.dev/core/internal/jsondecode"
	"groundedtheory.dev/core/internal/theory/judge"
)

// repairPatch is the strictly-scoped JSON a repair call may return. Only the
// keys relevant to the defect being repaired are populated; anything else is
// ignored rather than applied.
type repairPatch struct {
	Conditions            []rawItem        `json:"conditions"`
	Actions               []rawItem        `json:"actions"`
	Consequences          []rawConsequence `json:"consequences"`
	Propositions          []rawProposition `json:"propositions"`
	Context               []rawItem        `json:"context"`
	InterveningConditions []rawItem        `json:"intervening_conditions"`
}

const repairMaxTokens = 1200

var consequenceTypes = []string{"material", "social", "institutional"}
var consequenceHorizons = []string{"corto_plazo", "largo_plazo"}

// repairStep runs one repair call. Every failure (gateway error, undecodable
// response) leaves the paradigm section untouched.
func (e *Engine) repairStep(ctx context.Context, step, instruction string, paradigmJSON, evidenceJSON string) (repairPatch, bool) {
	system, user := buildPrompt(step, "generic", RepairPayload{
		Instruction:  instruction,
		ParadigmJSON: paradigmJSON,
		EvidenceJSON: evidenceJSON,
	})

	raw, _, err := e.deps.Gateway.Fast(ctx, system, user, repairMaxTokens)
	if err != nil {
		slog.WarnContext(ctx, "repair call failed, leaving section intact", "step", step, "error", err)
		return repairPatch{}, false
	}

	var patch repairPatch
	if err := jsondecode.Decode(raw, &patch); err != nil {
		slog.WarnContext(ctx, "repair response undecodable, leaving section intact", "step", step, "error", err)
		return repairPatch{}, false
	}
	return patch, true
}

// applyPatch merges whichever sections a repair call populated into p,
// additively: a repair call only ever adds coverage, never removes anything
// the model already produced.
func applyPatch(p judge.Paradigm, patch repairPatch) judge.Paradigm {
	if len(patch.Conditions) > 0 {
		p.Conditions = append(p.Conditions, toItems(patch.Conditions)...)
	}
	if len(patch.Actions) > 0 {
		p.Actions = append(p.Actions, toItems(patch.Actions)...)
	}
	for _, c := range patch.Consequences {
		p.Consequences = append(p.Consequences, judge.ConsequenceItem{
			Item:    judge.Item{Name: c.Name, EvidenceIDs: c.EvidenceIDs},
			Type:    c.Type,
			Horizon: c.Horizon,
		})
	}
	for _, pr := range patch.Propositions {
		p.Propositions = append(p.Propositions, judge.Proposition{Text: pr.Text, EvidenceIDs: pr.EvidenceIDs})
	}
	if len(patch.Context) > 0 {
		p.Context = append(p.Context, toItems(patch.Context)...)
	}
	if len(patch.InterveningConditions) > 0 {
		p.InterveningConditions = append(p.InterveningConditions, toItems(patch.InterveningConditions)...)
	}
	return p
}

// repairLoop runs the best-effort, pre-judge repairs: it
// inspects the paradigm's own shape (consequence-matrix coverage,
// proposition count/evidence, context+intervening emptiness) rather than
// waiting on a judge verdict. It returns the names of the repairs that
// actually fired (a call that errored or came back undecodable leaves its
// section untouched and is not counted), for the persisted
// paradigm_validation.repairs_applied trail.
func (e *Engine) repairLoop(ctx context.Context, p judge.Paradigm, evidenceJSON string) (judge.Paradigm, []string) {
	applied := []string{}

	if missingConsequenceCoverage(p.Consequences) {
		paradigmJSON, _ := json.Marshal(toModelJSON(p, 0))
		patch, ok := e.repairStep(ctx, "repair_consequences",
			"Add consequence items for the {material,social,institutional} x {corto_plazo,largo_plazo} cells not yet covered, each citing evidence_ids.",
			string(paradigmJSON), evidenceJSON)
		if ok && len(patch.Consequences) > 0 {
			p = applyPatch(p, repairPatch{Consequences: patch.Consequences})
			applied = append(applied, "consequences")
		}
	}

	if len(p.Propositions) < 5 || propositionsMissingEvidenceIDs(p.Propositions) {
		paradigmJSON, _ := json.Marshal(toModelJSON(p, 0))
		patch, ok := e.repairStep(ctx, "repair_propositions",
			"Add or complete propositions so there are at least 5, each citing evidence_ids.",
			string(paradigmJSON), evidenceJSON)
		if ok && len(patch.Propositions) > 0 {
			p = applyPatch(p, repairPatch{Propositions: patch.Propositions})
			applied = append(applied, "propositions")
		}
	}

	if len(p.Context) == 0 && len(p.InterveningConditions) == 0 {
		paradigmJSON, _ := json.Marshal(toModelJSON(p, 0))
		patch, ok := e.repairStep(ctx, "repair_context",
			"Lift constructs already named in the propositions into context and intervening_conditions, using only terms that also appear among the known categories.",
			string(paradigmJSON), evidenceJSON)
		if ok && (len(patch.Context) > 0 || len(patch.InterveningConditions) > 0) {
			p = applyPatch(p, repairPatch{Context: patch.Context, InterveningConditions: patch.InterveningConditions})
			applied = append(applied, "context")
		}
	}

	return p, applied
}

// targetedRepair is the judge-driven second chance: a single additional
// repair call, scoped to whichever blocking
// finding codes the judge actually returned, run once after the pre-judge
// repairLoop has already had its chance. The instruction names each finding
// so the model fixes exactly what was flagged rather than guessing.
func (e *Engine) targetedRepair(ctx context.Context, p judge.Paradigm, findings []judge.Finding, evidenceJSON string) (judge.Paradigm, []string) {
	codes := blockingCodes(findings)
	if len(codes) == 0 {
		return p, []string{}
	}

	instruction := repairInstructionForCodes(codes)
	paradigmJSON, _ := json.Marshal(toModelJSON(p, 0))
	patch, ok := e.repairStep(ctx, "repair_judge_findings", instruction, string(paradigmJSON), evidenceJSON)
	if !ok {
		return p, []string{}
	}

	p = applyPatch(p, patch)
	return p, repairNamesForCodes(codes)
}

// blockingCodes returns the distinct non-warning finding codes, in the order
// they first appeared.
func blockingCodes(findings []judge.Finding) []judge.Code {
	seen := make(map[judge.Code]bool, len(findings))
	var codes []judge.Code
	for _, f := range findings {
		if f.Warning || seen[f.Code] {
			continue
		}
		seen[f.Code] = true
		codes = append(codes, f.Code)
	}
	return codes
}

// repairFocus names which repairPatch keys a given judge finding code can be
// addressed by, and the provenance name recorded in repairs_applied.
var repairFocus = map[judge.Code]struct {
	name        string
	instruction string
}{
	judge.CodeConditionsActionsInvalid: {"conditions_actions", "Add missing evidence_ids to every conditions and actions item; do not remove any item."},
	judge.CodeConsequencesInvalid:      {"consequences", "Add missing evidence_ids to every consequence item; do not remove any item."},
	judge.CodeBalanceConsequences:      {"consequences", "Add consequence items for the {material,social,institutional} x {corto_plazo,largo_plazo} cells not yet covered, each citing evidence_ids."},
	judge.CodePropositionsInvalid:      {"propositions", "Add or complete propositions so there are at least 5, each citing evidence_ids."},
	judge.CodeContextInterveningInvalid: {"context", "Add missing evidence_ids to every context and intervening_conditions item; do not remove any item."},
	judge.CodeUnknownConstructs:        {"unknown_constructs", "Rename any construct in conditions/actions/context/intervening_conditions that is not one of the known categories to the closest known category name."},
	judge.CodeEvidenceMissing:          {"evidence_missing", "Remove or replace any evidence_ids that do not correspond to a real evidence fragment with ids drawn only from the evidence list given below."},
	judge.CodeDomainSanity:             {"domain_sanity", "Rewrite any text that names the methodology itself (coding, grounded theory, paradigm, saturation) in substantive domain language instead."},
	judge.CodeCoverageMinInterviews:    {"coverage", "Add propositions or items citing evidence_ids from interviews not yet represented, drawn from the evidence list given below."},
}

func repairInstructionForCodes(codes []judge.Code) string {
	var sb strings.Builder
	sb.WriteString("The validator rejected this paradigm for the following reasons; fix each without removing anything else:\n")
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		focus, ok := repairFocus[c]
		if !ok || seen[focus.instruction] {
			continue
		}
		seen[focus.instruction] = true
		fmt.Fprintf(&sb, "- %s: %s\n", c, focus.instruction)
	}
	return sb.String()
}

func repairNamesForCodes(codes []judge.Code) []string {
	seen := make(map[string]bool, len(codes))
	var names []string
	for _, c := range codes {
		focus, ok := repairFocus[c]
		if !ok || seen[focus.name] {
			continue
		}
		seen[focus.name] = true
		names = append(names, focus.name)
	}
	return names
}

func missingConsequenceCoverage(items []judge.ConsequenceItem) bool {
	cells := make(map[string]bool, 6)
	for _, c := range items {
		cells[c.Type+"|"+c.Horizon] = true
	}
	for _, t := range consequenceTypes {
		for _, h := range consequenceHorizons {
			if !cells[t+"|"+h] {
				return true
			}
		}
	}
	return false
}

func propositionsMissingEvidenceIDs(props []judge.Proposition) bool {
	for _, p := range props {
		if len(p.EvidenceIDs) == 0 {
			return true
		}
	}
	return false
}
