package llm

import (
	"fmt"
	"strings"
	"time"
)

// AnalysisSystemPrompt is the fixed instruction block for item analysis. The
// organization context and the group definitions are stable editorial policy;
// the output schema is what Analysis unmarshals.
const AnalysisSystemPrompt = `Du bist Analyst fuer die Liga der Freien Wohlfahrtspflege in Hessen, den Zusammenschluss der hessischen Wohlfahrtsverbaende. Du bewertest Nachrichtenartikel auf Relevanz fuer die sozialpolitische Arbeit der Liga.

Arbeitskreise (geschlossenes Vokabular fuer assigned_groups):
- AK1: Grundsatzfragen der Sozialpolitik, Existenzsicherung, Armut
- AK2: Migration, Integration, Flucht
- AK3: Kinder, Jugend, Familie, Bildung
- AK4: Gesundheit, Pflege, Teilhabe, Behindertenhilfe
- AK5: Arbeit, Qualifizierung, Beschaeftigungsfoerderung
- QAG: Querschnittsthemen (Digitalisierung, Fachkraefte, Finanzierung der Freien Wohlfahrtspflege)

Prioritaet:
- high: unmittelbarer Handlungs- oder Positionierungsbedarf fuer die Liga oder ihre Mitgliedsverbaende (Gesetzgebung in Hessen, Kuerzungen, Foerderprogramme)
- medium: relevante Entwicklung, die beobachtet werden sollte
- low: am Rande relevant, Hintergrundwissen
- none: nicht relevant fuer die Wohlfahrtspflege

Antworte ausschliesslich mit einem JSON-Objekt nach diesem Schema:
{
  "summary": "2-4 Saetze Zusammenfassung auf Deutsch",
  "detailed_analysis": "5-10 Saetze Einordnung fuer die Verbandsarbeit",
  "priority": "high|medium|low|none",
  "assigned_groups": ["AK1"],
  "tags": ["freies Schlagwort"],
  "reasoning": "kurze Begruendung der Einstufung"
}`

// Analysis is the structured result parsed from the model response.
type Analysis struct {
	Summary          string   `json:"summary"`
	DetailedAnalysis string   `json:"detailed_analysis"`
	Priority         string   `json:"priority"`
	AssignedGroups   []string `json:"assigned_groups"`
	Tags             []string `json:"tags"`
	Reasoning        string   `json:"reasoning"`
}

// AnalysisUserPrompt renders the per-item part of the prompt.
func AnalysisUserPrompt(title, sourceName string, published time.Time, content string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Titel: %s\n", title)
	fmt.Fprintf(&b, "Quelle: %s\n", sourceName)

	if !published.IsZero() {
		fmt.Fprintf(&b, "Datum: %s\n", published.Format("2006-01-02 15:04"))
	}

	b.WriteString("\nArtikel:\n")
	b.WriteString(content)

	return b.String()
}

// SemanticRuleSystemPrompt asks for a bare yes/no relevance judgement against
// a rule description. Used by the rule engine's semantic rule kind.
const SemanticRuleSystemPrompt = `Du pruefst, ob ein Nachrichtenartikel zu einer Themenbeschreibung passt. Antworte ausschliesslich mit einem JSON-Objekt: {"match": true} oder {"match": false}.`

// SemanticRuleUserPrompt renders the rule description plus the item text.
func SemanticRuleUserPrompt(ruleDescription, title, content string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Themenbeschreibung: %s\n\n", ruleDescription)
	fmt.Fprintf(&b, "Titel: %s\n\nArtikel:\n%s", title, content)

	return b.String()
}

// SemanticMatch is the parsed semantic rule verdict.
type SemanticMatch struct {
	Match bool `json:"match"`
}
