package service

import (
	"caseprep_backend/internal/model"
	"strings"
)

// TurnSeparator joins serialised conversation turns.
const TurnSeparator = "\n\n---\n\n"

// Prompt is an assembled evaluator prompt together with the verdict protocol
// the model was instructed to follow.
type Prompt struct {
	Text     string
	Sentinel Sentinel
}

// Sentinel is the verdict line the model must emit on its own line.
type Sentinel struct {
	Label string
	Pass  string
	Fail  string
}

func (s Sentinel) PassLine() string { return s.Label + ": " + s.Pass }
func (s Sentinel) FailLine() string { return s.Label + ": " + s.Fail }

type promptTemplate struct {
	sentinel         Sentinel
	interviewerLabel string
	candidateLabel   string
	sketchLabel      string
	preamble         string
	caseHeading      string
	titleLabel       string
	companyLabel     string
	industryLabel    string
	sectionHeading   string
	sectionLabel     string
	questionLabel    string
	instructionLabel string
	caseDataHeading  string
	graphHeading     string
	criteriaHeading  string
	hintHeading      string
	historyHeading   string
	noHistory        string
	latestHeading    string
	sketchHeading    string
	verdictPass      string
	verdictFail      string
	verdictRule      string
}

var swedishTemplate = promptTemplate{
	sentinel:         Sentinel{Label: "KRITERIER UPPFYLLDA", Pass: "Ja", Fail: "Nej"},
	interviewerLabel: "Kund:",
	candidateLabel:   "Kandidat:",
	sketchLabel:      "Skiss",
	preamble: `Du är en senior konsult på en ledande managementkonsultfirma (t.ex. McKinsey, BCG eller Bain) som intervjuar en kandidat i ett caseintervjuformat.
Du är metodisk, professionell och coachande, men håller höga krav på tydliga, logiska resonemang.

Dina uppgifter i denna interaktion är att:
1. Guida kandidaten genom caset steg för steg och ge relevant information vid behov
2. Säkerställa att kandidatens resonemang täcker sektionens kärnaspekter
3. Bedöma om kandidaten uppfyller samtliga kriterier för att gå vidare
4. Om kandidaten uppfyller alla kriterier, ställ då ingen följdfråga utan ge bara ett förtydligande avslut.
5. Om kandidaten ställer en fråga, svara mycket kortfattat utan att ge för mycket vägledning
6. Dela endast med dig av specifik data från CASE DATA-sektionen om kandidaten aktivt efterfrågar den typen av information, eller om deras resonemang naturligt leder till det.
   Du får aldrig visa hela CASE DATA-listan. Avslöja inte fler datapunkter än vad kandidaten själv leder in samtalet mot.`,
	caseHeading:      "CASE STUDY",
	titleLabel:       "Titel",
	companyLabel:     "Företag",
	industryLabel:    "Bransch",
	sectionHeading:   "Nuvarande sektionsfråga:",
	sectionLabel:     "SEKTION",
	questionLabel:    "FRÅGA",
	instructionLabel: "AI-INSTRUKTIONER",
	caseDataHeading:  "CASE DATA:",
	graphHeading:     "Graf/bild som är relevant för frågan:",
	criteriaHeading:  "Bedömningskriterier i denna sektion:",
	hintHeading:      "Ledtråd som kandidaten har tillgång till:",
	historyHeading:   "Konversationshistorik:",
	noHistory:        "Ingen tidigare konversation",
	latestHeading:    "Kandidatens senaste svar:",
	sketchHeading:    "Kandidatens skissanalys:",
	verdictPass:      "Om kandidatens svar uppfyller kriterierna, skriv exakt följande på en egen rad, utan extra text före eller efter, och ge ett förtydligande avslut utan följdfrågor:",
	verdictFail:      "Om kandidatens svar inte uppfyller kriterierna, skriv exakt följande på en egen rad, utan extra text före eller efter:",
	verdictRule: `Du får inte använda andra varianter som "Delvis" eller lägga till extra text på den raden.
Detta är ett tekniskt format som används för att trigga nästa steg i systemet.`,
}

var englishTemplate = promptTemplate{
	sentinel:         Sentinel{Label: "CRITERIA MET", Pass: "Yes", Fail: "No"},
	interviewerLabel: "Interviewer:",
	candidateLabel:   "Candidate:",
	sketchLabel:      "Sketch",
	preamble: `You are a senior consultant at a leading management consulting firm (e.g. McKinsey, BCG or Bain) interviewing a candidate in a case interview format.
You are methodical, professional and coaching, but you hold a high bar for clear, logical reasoning.

Your tasks in this interaction are to:
1. Guide the candidate through the case step by step and provide relevant information when needed
2. Make sure the candidate's reasoning covers the core aspects of the section
3. Judge whether the candidate meets all criteria to move on
4. If the candidate meets all criteria, ask no follow-up question and give a short clarifying wrap-up only.
5. If the candidate asks a question, answer very briefly without giving too much guidance
6. Only share specific data from the CASE DATA section when the candidate actively asks for that kind of information, or when their reasoning naturally leads to it.
   Never reveal the full CASE DATA list. Do not disclose more data points than the candidate leads the conversation towards.`,
	caseHeading:      "CASE STUDY",
	titleLabel:       "Title",
	companyLabel:     "Company",
	industryLabel:    "Industry",
	sectionHeading:   "Current section question:",
	sectionLabel:     "SECTION",
	questionLabel:    "QUESTION",
	instructionLabel: "AI INSTRUCTIONS",
	caseDataHeading:  "CASE DATA:",
	graphHeading:     "Graph or image relevant to the question:",
	criteriaHeading:  "Assessment criteria for this section:",
	hintHeading:      "Hint available to the candidate:",
	historyHeading:   "Conversation history:",
	noHistory:        "No previous conversation",
	latestHeading:    "Candidate's latest answer:",
	sketchHeading:    "Analysis of the candidate's sketch:",
	verdictPass:      "If the candidate's answer meets the criteria, write exactly the following on its own line, with no other text before or after it, and give a clarifying wrap-up without follow-up questions:",
	verdictFail:      "If the candidate's answer does not meet the criteria, write exactly the following on its own line, with no other text before or after it:",
	verdictRule: `You must not use any other variant such as "Partially" or add any other text on that line.
This is a technical format used to trigger the next step in the system.`,
}

func templateFor(language string) *promptTemplate {
	if strings.EqualFold(strings.TrimSpace(language), "sv") {
		return &swedishTemplate
	}
	return &englishTemplate
}

// SentinelFor returns the verdict protocol used for a case language.
func SentinelFor(language string) Sentinel {
	return templateFor(language).sentinel
}

// BuildPrompt assembles the evaluator prompt. Optional fields are left out
// entirely when blank and the history is rendered verbatim.
func BuildPrompt(bc *model.BusinessCase, section *model.CaseSection, history []model.ConversationTurn, latest model.ConversationTurn, sketchDescription string) *Prompt {
	t := templateFor(bc.Language)
	var b strings.Builder

	b.WriteString(t.preamble)
	b.WriteString("\n\n---\n\n")

	b.WriteString(t.caseHeading + "\n")
	b.WriteString(t.titleLabel + ": " + bc.Title + "\n")
	b.WriteString(t.companyLabel + ": " + bc.Company + "\n")
	b.WriteString(t.industryLabel + ": " + bc.Industry + "\n\n")

	b.WriteString(t.sectionHeading + "\n")
	b.WriteString(t.sectionLabel + ": " + section.Title + "\n")
	b.WriteString(t.questionLabel + ": " + section.Prompt + "\n")
	writeOptional(&b, t.instructionLabel+":", section.AIInstructions)
	writeOptional(&b, t.caseDataHeading, section.CaseData)
	writeOptional(&b, t.graphHeading, section.GraphDescription)
	writeOptional(&b, t.criteriaHeading, section.Criteria)
	writeOptional(&b, t.hintHeading, section.Hint)

	b.WriteString("\n" + t.historyHeading + "\n")
	if len(history) == 0 {
		b.WriteString(t.noHistory + "\n")
	} else {
		b.WriteString(RenderHistory(bc.Language, history) + "\n")
	}

	b.WriteString("\n" + t.latestHeading + "\n")
	b.WriteString(renderTurnBody(t, latest) + "\n")
	writeOptional(&b, t.sketchHeading, sketchDescription)

	b.WriteString("\n---\n\n")
	b.WriteString(t.verdictPass + "\n")
	b.WriteString(t.sentinel.PassLine() + "\n\n")
	b.WriteString(t.verdictFail + "\n")
	b.WriteString(t.sentinel.FailLine() + "\n\n")
	b.WriteString(t.verdictRule + "\n")

	return &Prompt{Text: b.String(), Sentinel: t.sentinel}
}

// RenderHistory serialises turns with role labels, joined by TurnSeparator.
func RenderHistory(language string, history []model.ConversationTurn) string {
	t := templateFor(language)
	parts := make([]string, 0, len(history))
	for _, turn := range history {
		label := t.candidateLabel
		if turn.Role == model.RoleInterviewer {
			label = t.interviewerLabel
		}
		parts = append(parts, label+" "+renderTurnBody(t, turn))
	}
	return strings.Join(parts, TurnSeparator)
}

func renderTurnBody(t *promptTemplate, turn model.ConversationTurn) string {
	body := turn.Content
	if url := turn.SketchURL(); url != "" {
		sketch := "[" + t.sketchLabel + "]\n![" + t.sketchLabel + "](" + url + ")"
		if strings.TrimSpace(body) == "" {
			body = sketch
		} else {
			body = body + "\n" + sketch
		}
	}
	return body
}

func writeOptional(b *strings.Builder, heading, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString("\n" + heading + "\n" + value + "\n")
}
