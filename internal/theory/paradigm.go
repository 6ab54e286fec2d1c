package theory

import (
	"groundedtheory.dev/core/internal/theory/judge"
)

// rawItem is the wire shape of one conditions/context/actions/intervening
// entry before normalisation.
type rawItem struct {
	Name        string   `json:"name"`
	EvidenceIDs []string `json:"evidence_ids"`
}

type rawConsequence struct {
	Name        string   `json:"name"`
	EvidenceIDs []string `json:"evidence_ids"`
	Type        string   `json:"type"`
	Horizon     string   `json:"horizon"`
}

type rawProposition struct {
	Text        string   `json:"text"`
	EvidenceIDs []string `json:"evidence_ids"`
}

// rawParadigm is the wire shape the "paradigm" reasoning stage returns,
// tolerating the legacy key names the repair loop also watches for.
type rawParadigm struct {
	SelectedCentralCategory string           `json:"selected_central_category"`
	Conditions              []rawItem        `json:"conditions"`
	CausalConditions        []rawItem        `json:"causal_conditions"`
	Context                 []rawItem        `json:"context"`
	InterveningConditions   []rawItem        `json:"intervening_conditions"`
	Actions                 []rawItem        `json:"actions"`
	ActionStrategies        []rawItem        `json:"action_strategies"`
	Consequences            []rawConsequence `json:"consequences"`
	Propositions            []rawProposition `json:"propositions"`
	ConfidenceScore         float64          `json:"confidence_score"`
}

// normalizeParadigm aliases legacy key names (causal_conditions->conditions,
// action_strategies->actions) and converts to the judge package's structured
// shape ahead of persistence.
func normalizeParadigm(raw rawParadigm) judge.Paradigm {
	conditions := raw.Conditions
	if len(conditions) == 0 {
		conditions = raw.CausalConditions
	}
	actions := raw.Actions
	if len(actions) == 0 {
		actions = raw.ActionStrategies
	}

	p := judge.Paradigm{
		SelectedCentralCategory: raw.SelectedCentralCategory,
		Conditions:              toItems(conditions),
		Context:                 toItems(raw.Context),
		InterveningConditions:   toItems(raw.InterveningConditions),
		Actions:                 toItems(actions),
	}
	for _, c := range raw.Consequences {
		p.Consequences = append(p.Consequences, judge.ConsequenceItem{
			Item:    judge.Item{Name: c.Name, EvidenceIDs: c.EvidenceIDs},
			Type:    c.Type,
			Horizon: c.Horizon,
		})
	}
	for _, pr := range raw.Propositions {
		p.Propositions = append(p.Propositions, judge.Proposition{Text: pr.Text, EvidenceIDs: pr.EvidenceIDs})
	}
	return p
}

func toItems(items []rawItem) []judge.Item {
	out := make([]judge.Item, 0, len(items))
	for _, i := range items {
		out = append(out, judge.Item{Name: i.Name, EvidenceIDs: i.EvidenceIDs})
	}
	return out
}

// toModelJSON renders the normalised paradigm into the persisted shape:
// canonical key names, missing lists defaulted to empty rather than absent.
func toModelJSON(p judge.Paradigm, confidenceScore float64) map[string]any {
	return map[string]any{
		"selected_central_category": p.SelectedCentralCategory,
		"conditions":                itemsToJSON(p.Conditions),
		"context":                   itemsToJSON(p.Context),
		"intervening_conditions":    itemsToJSON(p.InterveningConditions),
		"actions":                   itemsToJSON(p.Actions),
		"consequences":              consequencesToJSON(p.Consequences),
		"propositions":              propositionsToJSON(p.Propositions),
		"confidence_score":          confidenceScore,
	}
}

func itemsToJSON(items []judge.Item) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, i := range items {
		out = append(out, map[string]any{"name": i.Name, "evidence_ids": orEmpty(i.EvidenceIDs)})
	}
	return out
}

func consequencesToJSON(items []judge.ConsequenceItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, i := range items {
		out = append(out, map[string]any{
			"name": i.Name, "evidence_ids": orEmpty(i.EvidenceIDs),
			"type": i.Type, "horizon": i.Horizon,
		})
	}
	return out
}

func propositionsToJSON(props []judge.Proposition) []map[string]any {
	out := make([]map[string]any, 0, len(props))
	for _, p := range props {
		out = append(out, map[string]any{"text": p.Text, "evidence_ids": orEmpty(p.EvidenceIDs)})
	}
	return out
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

// toModelJSONStripped renders the same shape as toModelJSON but omits
// evidence_ids from every section, for the saturation stage's
// strip_evidence_stage3 degrade step: the paradigm's structure still informs
// the gap analysis, but its evidence citations no longer count against the
// budget.
func toModelJSONStripped(p judge.Paradigm, confidenceScore float64) map[string]any {
	return map[string]any{
		"selected_central_category": p.SelectedCentralCategory,
		"conditions":                namesOnlyJSON(p.Conditions),
		"context":                   namesOnlyJSON(p.Context),
		"intervening_conditions":    namesOnlyJSON(p.InterveningConditions),
		"actions":                   namesOnlyJSON(p.Actions),
		"consequences":              consequenceNamesOnlyJSON(p.Consequences),
		"propositions":              propositionTextsOnly(p.Propositions),
		"confidence_score":          confidenceScore,
	}
}

func namesOnlyJSON(items []judge.Item) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.Name)
	}
	return out
}

func consequenceNamesOnlyJSON(items []judge.ConsequenceItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, i := range items {
		out = append(out, map[string]any{"name": i.Name, "type": i.Type, "horizon": i.Horizon})
	}
	return out
}

func propositionTextsOnly(props []judge.Proposition) []string {
	out := make([]string, 0, len(props))
	for _, p := range props {
		out = append(out, p.Text)
	}
	return out
}

// capEvidencePerCategory enforces a per-category ceiling on evidence
// snippets, for the paradigm stage's frags_per_cat degrade step. Order is
// preserved; only the overflow past maxPerCategory is dropped.
func capEvidencePerCategory(evidence []EvidenceSnippet, maxPerCategory int) []EvidenceSnippet {
	if maxPerCategory <= 0 {
		return nil
	}
	counts := make(map[string]int, len(evidence))
	out := make([]EvidenceSnippet, 0, len(evidence))
	for _, e := range evidence {
		if counts[e.CategoryID] >= maxPerCategory {
			continue
		}
		counts[e.CategoryID]++
		out = append(out, e)
	}
	return out
}

// truncateEvidenceText caps each snippet's text length, for the paradigm
// stage's fragment_chars degrade step.
func truncateEvidenceText(evidence []EvidenceSnippet, maxChars int) []EvidenceSnippet {
	if maxChars <= 0 {
		return evidence
	}
	out := make([]EvidenceSnippet, len(evidence))
	for i, e := range evidence {
		if len(e.Text) > maxChars {
			e.Text = e.Text[:maxChars]
		}
		out[i] = e
	}
	return out
}

// evidenceIndexUsed lists the distinct fragment ids actually retrieved as
// candidate evidence for this run, for paradigm_validation.evidence_index_used.
func evidenceIndexUsed(evidence []EvidenceSnippet) []string {
	seen := make(map[string]bool, len(evidence))
	out := make([]string, 0, len(evidence))
	for _, e := range evidence {
		if e.FragmentID == "" || seen[e.FragmentID] {
			continue
		}
		seen[e.FragmentID] = true
		out = append(out, e.FragmentID)
	}
	return out
}
