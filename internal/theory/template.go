package theory

// domainTemplate supplies the vocabulary substitutions buildPrompt uses to
// steer the model's language toward the project's subject domain.
type domainTemplate struct {
	Actors             string
	CriticalDimensions string
	Metrics            string
	ExtraInstructions  string
}

var domainTemplates = map[string]domainTemplate{
	"generic": {
		Actors:             "the people described in the interviews",
		CriticalDimensions: "motivation, constraint, and consequence",
		Metrics:            "frequency and salience across interviews",
		ExtraInstructions:  "",
	},
	"education": {
		Actors:             "students, instructors, and administrators",
		CriticalDimensions: "engagement, learning support, and institutional constraint",
		Metrics:            "how many distinct classrooms or cohorts a pattern recurs across",
		ExtraInstructions:  "Prefer vocabulary used in pedagogy and student-support literature over generic business terms.",
	},
	"ngo": {
		Actors:             "beneficiaries, field staff, and program managers",
		CriticalDimensions: "needs met, resource constraint, and community trust",
		Metrics:            "how many distinct communities or program sites a pattern recurs across",
		ExtraInstructions:  "Avoid donor-facing jargon; describe lived experience in the beneficiaries' own terms where possible.",
	},
	"government": {
		Actors:             "residents, caseworkers, and policy administrators",
		CriticalDimensions: "service access, procedural burden, and accountability",
		Metrics:            "how many distinct offices or jurisdictions a pattern recurs across",
		ExtraInstructions:  "Use neutral administrative language; avoid partisan framing.",
	},
	"market_research": {
		Actors:             "customers, prospects, and account teams",
		CriticalDimensions: "purchase driver, friction, and switching cost",
		Metrics:            "how many distinct customer segments a pattern recurs across",
		ExtraInstructions:  "Frame consequences in terms of retention, conversion, or churn where the evidence supports it.",
	},
}

func templateFor(key string) domainTemplate {
	if t, ok := domainTemplates[key]; ok {
		return t
	}
	return domainTemplates["generic"]
}
