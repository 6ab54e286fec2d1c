// Package judge implements the theory judge: a pure, synchronous
// validator over an assembled paradigm. It never touches a store or an LLM;
// everything it needs is passed in by the caller.
package judge

import (
	"fmt"
	"math"
	"strings"
)

// Code identifies one validation rule. Every Finding carries exactly one.
type Code string

const (
	CodeUnknownConstructs        Code = "UNKNOWN_CONSTRUCTS"
	CodeDomainSanity             Code = "DOMAIN_SANITY"
	CodeConditionsActionsInvalid Code = "CONDITIONS_ACTIONS_INVALID"
	CodeConsequencesInvalid      Code = "CONSEQUENCES_INVALID"
	CodePropositionsInvalid      Code = "PROPOSITIONS_INVALID"
	CodeContextInterveningInvalid Code = "CONTEXT_INTERVENING_INVALID"
	CodeBalanceConsequences      Code = "BALANCE_CONSEQUENCES"
	CodeEvidenceMissing          Code = "EVIDENCE_MISSING"
	CodeCoverageMinInterviews    Code = "COVERAGE_MIN_INTERVIEWS"
	CodeCoverageConcentration    Code = "COVERAGE_CONCENTRATION"
)

// Finding is one validation result. Warning findings never block strict mode
// on their own but are always persisted.
type Finding struct {
	Code    Code
	Message string
	Warning bool
}

// Item is a named construct with the evidence fragment ids that support it.
type Item struct {
	Name        string
	EvidenceIDs []string
}

// ConsequenceItem additionally tags the {type}x{horizon} cell it occupies.
type ConsequenceItem struct {
	Item
	Type    string // material, social, institutional
	Horizon string // corto_plazo, largo_plazo
}

// Proposition mirrors model.Proposition without importing internal/model, so
// this package stays usable from pure unit tests with hand-built fixtures.
type Proposition struct {
	Text        string
	EvidenceIDs []string
}

// Paradigm is the structured shape the Straussian-paradigm stage produces,
// after alias normalisation (causal_conditions -> conditions, etc).
type Paradigm struct {
	SelectedCentralCategory string
	Conditions              []Item
	Context                 []Item
	InterveningConditions   []Item
	Actions                 []Item
	Consequences            []ConsequenceItem
	Propositions            []Proposition
}

// Config tunes every threshold the checks reference. Zero values are not
// sensible defaults; callers should populate this from core/config.
type Config struct {
	MaxUnknownConstructRatio float64  // UNKNOWN_CONSTRUCTS threshold, e.g. 0.4
	ProhibitedTerms          []string // DOMAIN_SANITY vocabulary
	MinPropositions          int      // PROPOSITIONS_INVALID threshold, e.g. 5
	BalanceMinEvidence       int      // BALANCE_CONSEQUENCES degrades to warning below this
	MaxSharePerInterview     float64  // COVERAGE_CONCENTRATION threshold, e.g. 0.6 (0 disables)
	MinInterviews            int      // COVERAGE_MIN_INTERVIEWS configured minimum
	AdaptiveRatio            float64  // effective_min = min(MinInterviews, ceil(available*ratio)); 0 disables adaptivity
}

var consequenceTypes = []string{"material", "social", "institutional"}
var consequenceHorizons = []string{"corto_plazo", "largo_plazo"}

// Validate runs every check and returns every finding (errors and warnings
// alike); the caller decides what to do with them based on the effective
// rollout mode.
func Validate(p Paradigm, knownCategories []string, fragmentInterview map[string]string, availableEvidenceIDs map[string]bool, availableInterviews int, cfg Config) []Finding {
	var findings []Finding

	findings = append(findings, checkUnknownConstructs(p, knownCategories, cfg)...)
	findings = append(findings, checkDomainSanity(p, cfg)...)
	findings = append(findings, checkSectionsHaveEvidence(p, cfg)...)
	findings = append(findings, checkBalanceConsequences(p, cfg)...)
	findings = append(findings, checkEvidenceMissing(p, availableEvidenceIDs)...)
	findings = append(findings, checkCoverage(p, fragmentInterview, availableInterviews, cfg)...)

	return findings
}

// checkUnknownConstructs flags when too many named constructs across
// conditions/actions/context/intervening fall outside the known category set.
func checkUnknownConstructs(p Paradigm, knownCategories []string, cfg Config) []Finding {
	known := make(map[string]bool, len(knownCategories))
	for _, c := range knownCategories {
		known[normalize(c)] = true
	}

	var names []string
	for _, i := range p.Conditions {
		names = append(names, i.Name)
	}
	for _, i := range p.Actions {
		names = append(names, i.Name)
	}
	for _, i := range p.Context {
		names = append(names, i.Name)
	}
	for _, i := range p.InterveningConditions {
		names = append(names, i.Name)
	}
	if len(names) == 0 {
		return nil
	}

	unknown := 0
	for _, n := range names {
		if !known[normalize(n)] {
			unknown++
		}
	}
	ratio := float64(unknown) / float64(len(names))
	threshold := cfg.MaxUnknownConstructRatio
	if threshold <= 0 {
		threshold = 0.4
	}
	if ratio >= threshold {
		return []Finding{{
			Code:    CodeUnknownConstructs,
			Message: fmt.Sprintf("%d/%d named constructs (%.0f%%) are outside the known category set", unknown, len(names), ratio*100),
		}}
	}
	return nil
}

// checkDomainSanity flags prohibited meta-methodological vocabulary leaking
// into the paradigm (the model describing its own method instead of the
// substantive theory).
func checkDomainSanity(p Paradigm, cfg Config) []Finding {
	if len(cfg.ProhibitedTerms) == 0 {
		return nil
	}
	haystack := strings.ToLower(paradigmText(p))
	for _, term := range cfg.ProhibitedTerms {
		if term == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(term)) {
			return []Finding{{
				Code:    CodeDomainSanity,
				Message: fmt.Sprintf("prohibited term %q appears in the paradigm", term),
			}}
		}
	}
	return nil
}

func paradigmText(p Paradigm) string {
	var sb strings.Builder
	sb.WriteString(p.SelectedCentralCategory)
	for _, i := range allItems(p) {
		sb.WriteString(" ")
		sb.WriteString(i.Name)
	}
	for _, pr := range p.Propositions {
		sb.WriteString(" ")
		sb.WriteString(pr.Text)
	}
	return sb.String()
}

func allItems(p Paradigm) []Item {
	items := make([]Item, 0, len(p.Conditions)+len(p.Context)+len(p.InterveningConditions)+len(p.Actions)+len(p.Consequences))
	items = append(items, p.Conditions...)
	items = append(items, p.Context...)
	items = append(items, p.InterveningConditions...)
	items = append(items, p.Actions...)
	for _, c := range p.Consequences {
		items = append(items, c.Item)
	}
	return items
}

// checkSectionsHaveEvidence enforces that every evidence-bearing item carries
// evidence_ids, and that there are enough propositions.
func checkSectionsHaveEvidence(p Paradigm, cfg Config) []Finding {
	var findings []Finding

	minPropositions := cfg.MinPropositions
	if minPropositions <= 0 {
		minPropositions = 5
	}

	if missingEvidence(p.Conditions) || missingEvidence(p.Actions) {
		findings = append(findings, Finding{Code: CodeConditionsActionsInvalid, Message: "one or more conditions/actions items are missing evidence_ids"})
	}
	if consequencesMissingEvidence(p.Consequences) {
		findings = append(findings, Finding{Code: CodeConsequencesInvalid, Message: "one or more consequences are missing evidence_ids"})
	}
	if len(p.Propositions) < minPropositions || propositionsMissingEvidence(p.Propositions) {
		findings = append(findings, Finding{Code: CodePropositionsInvalid, Message: fmt.Sprintf("expected at least %d propositions each with evidence_ids, got %d", minPropositions, len(p.Propositions))})
	}
	if missingEvidence(p.Context) || missingEvidence(p.InterveningConditions) {
		findings = append(findings, Finding{Code: CodeContextInterveningInvalid, Message: "one or more context/intervening_conditions items are missing evidence_ids"})
	}

	return findings
}

func missingEvidence(items []Item) bool {
	for _, i := range items {
		if len(i.EvidenceIDs) == 0 {
			return true
		}
	}
	return false
}

func consequencesMissingEvidence(items []ConsequenceItem) bool {
	for _, i := range items {
		if len(i.EvidenceIDs) == 0 {
			return true
		}
	}
	return false
}

func propositionsMissingEvidence(props []Proposition) bool {
	for _, p := range props {
		if len(p.EvidenceIDs) == 0 {
			return true
		}
	}
	return false
}

// checkBalanceConsequences verifies the {material,social,institutional} x
// {corto_plazo,largo_plazo} matrix is covered, degrading to a warning when
// total cited evidence is too thin to expect full coverage.
func checkBalanceConsequences(p Paradigm, cfg Config) []Finding {
	cells := make(map[string]bool, 6)
	totalEvidence := 0
	for _, c := range p.Consequences {
		cells[c.Type+"|"+c.Horizon] = true
		totalEvidence += len(c.EvidenceIDs)
	}

	var missing []string
	for _, t := range consequenceTypes {
		for _, h := range consequenceHorizons {
			if !cells[t+"|"+h] {
				missing = append(missing, t+"x"+h)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	warning := totalEvidence < cfg.BalanceMinEvidence
	return []Finding{{
		Code:    CodeBalanceConsequences,
		Message: fmt.Sprintf("consequences matrix missing cells: %s", strings.Join(missing, ", ")),
		Warning: warning,
	}}
}

// checkEvidenceMissing flags any evidence id cited in the paradigm that
// doesn't exist in the project's evidence index.
func checkEvidenceMissing(p Paradigm, available map[string]bool) []Finding {
	var missing []string
	for _, i := range allItems(p) {
		for _, id := range i.EvidenceIDs {
			if !available[id] {
				missing = append(missing, id)
			}
		}
	}
	for _, pr := range p.Propositions {
		for _, id := range pr.EvidenceIDs {
			if !available[id] {
				missing = append(missing, id)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return []Finding{{
		Code:    CodeEvidenceMissing,
		Message: fmt.Sprintf("%d cited evidence id(s) do not exist: %s", len(missing), strings.Join(dedupe(missing), ", ")),
	}}
}

// checkCoverage enforces the minimum-distinct-interviews rule and flags
// concentration in a single interview as a warning.
func checkCoverage(p Paradigm, fragmentInterview map[string]string, availableInterviews int, cfg Config) []Finding {
	counts := map[string]int{}
	total := 0
	for _, i := range allItems(p) {
		for _, fragID := range i.EvidenceIDs {
			if interviewID, ok := fragmentInterview[fragID]; ok {
				counts[interviewID]++
				total++
			}
		}
	}
	for _, pr := range p.Propositions {
		for _, fragID := range pr.EvidenceIDs {
			if interviewID, ok := fragmentInterview[fragID]; ok {
				counts[interviewID]++
				total++
			}
		}
	}

	var findings []Finding

	effectiveMin := cfg.MinInterviews
	if cfg.AdaptiveRatio > 0 {
		adaptive := int(math.Ceil(float64(availableInterviews) * cfg.AdaptiveRatio))
		if adaptive < effectiveMin {
			effectiveMin = adaptive
		}
	}
	if effectiveMin > availableInterviews {
		effectiveMin = availableInterviews
	}
	if len(counts) < effectiveMin {
		findings = append(findings, Finding{
			Code:    CodeCoverageMinInterviews,
			Message: fmt.Sprintf("evidence cites %d distinct interviews, need at least %d", len(counts), effectiveMin),
		})
	}

	if total > 0 && cfg.MaxSharePerInterview > 0 {
		for _, c := range counts {
			if float64(c)/float64(total) >= cfg.MaxSharePerInterview {
				findings = append(findings, Finding{
					Code:    CodeCoverageConcentration,
					Message: fmt.Sprintf("a single interview contributes %.0f%% of cited evidence", float64(c)/float64(total)*100),
					Warning: true,
				})
				break
			}
		}
	}

	return findings
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func dedupe(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
