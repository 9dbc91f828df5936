package prompt

import (
	"fmt"
	"strings"

	"jurismemo-backend/models"
)

// System roles sent alongside the assembled user message
const (
	MemoSystemRole = "Je bent een juridisch assistent gespecialiseerd in Nederlandse sociale zekerheidszaken. " +
		"Je schrijft juridisch correcte en duidelijke memo's gebaseerd op gerechtelijke uitspraken."

	ReviewSystemRole = "Je bent een juridisch assistent gespecialiseerd in Nederlandse sociale zekerheidszaken. " +
		"Je controleert of een memo juridisch correct en goed onderbouwd is."
)

// unknown fills in metadata the store did not provide
const unknown = "Onbekend"

const memoRole = "Je bent een juridisch assistent gespecialiseerd in Nederlandse sociale zekerheidszaken. " +
	"Gebruik uitsluitend de onderstaande uitspraken voor je analyse. " +
	"Verwijs in elke relevante zin naar de juiste ECLI-code. " +
	"Gebruik geen kennis buiten deze uitspraken.\n\n"

const memoInstruction = `

### Memo:
Schrijf een juridisch memorandum dat uitlegt hoe de bovenstaande uitspraken relevant zijn voor de vraag.
Pas de jurisprudentie concreet toe op de feiten van de zaak.
Vergelijk overeenkomsten en verschillen tussen de uitspraken en de situatie van de cliënt.
Gebruik alleen de meest relevante uitspraken en groepeer vergelijkbare rechtspraak waar mogelijk.
Verwijs expliciet naar de ECLI-code van elke uitspraak die je bespreekt.

Gebruik de volgende structuur:
1. Vraaganalyse: Geef kort de kern van het juridische probleem weer.
2. Toepassing jurisprudentie: Analyseer relevante uitspraken en pas deze toe op de vraag en de feiten.
3. Conclusie: Geef een juridisch onderbouwd advies of antwoord. Beoordeel de kans van slagen en noem mogelijke vervolgstappen.
`

const reviewRole = "Je bent een juridisch assistent gespecialiseerd in Nederlandse sociale zekerheidszaken. " +
	"Je controleert of een gegenereerde memo juridisch accuraat is en volledig gebaseerd is op de opgehaalde gerechtelijke uitspraken.\n\n"

const reviewInstruction = `

### Instructie:
Herschrijf de bovenstaande memo zodat deze alleen gebruik maakt van de opgehaalde fragmenten. ` +
	`Verwijder ongefundeerde uitspraken, voeg expliciete verwijzingen naar ECLI-codes toe, en verbeter de juridische helderheid. ` +
	`De herziene memo moet volledig herleidbaar zijn tot de opgehaalde fragmenten en vrij zijn van hallucinaties of externe kennis.
`

// BuildQuery renders the case intake as the retrieval query
func BuildQuery(req models.MemoRequest) string {
	return fmt.Sprintf("Betwist besluit: %s\nGewenst resultaat: %s\nKritieke feiten: %s\nToepasselijke wet: %s\nDoelgroep: %s",
		strings.TrimSpace(req.DisputedDecision),
		strings.TrimSpace(req.DesiredOutcome),
		strings.TrimSpace(req.CriticalFacts),
		strings.TrimSpace(req.ApplicableLaw),
		strings.TrimSpace(req.Recipients),
	)
}

// BuildPrompt assembles the drafting prompt for query and the ranked chunks
func BuildPrompt(query string, chunks []models.Chunk) string {
	var b strings.Builder
	b.WriteString(memoRole)
	b.WriteString("### Vraag:\n")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\n")
	b.WriteString("### Geselecteerde uitspraken:\n")
	b.WriteString(FormatFragments(chunks))
	b.WriteString(memoInstruction)
	return b.String()
}

// BuildReviewPrompt asks for a rewrite of draft that only relies on chunks
func BuildReviewPrompt(draft string, chunks []models.Chunk) string {
	var b strings.Builder
	b.WriteString(reviewRole)
	b.WriteString("### Geselecteerde uitspraken:\n")
	b.WriteString(FormatFragments(chunks))
	b.WriteString("\n\n")
	b.WriteString("### Oorspronkelijke Memo:\n")
	b.WriteString(strings.TrimSpace(draft))
	b.WriteString("\n\n")
	b.WriteString(reviewInstruction)
	return b.String()
}

// FormatFragments renders chunks as a numbered list separated by blank lines
func FormatFragments(chunks []models.Chunk) string {
	entries := make([]string, len(chunks))
	for i, c := range chunks {
		entries[i] = fmt.Sprintf("%d. ECLI: %s\n   Titel: %s\n   Instantie: %s\n   Datum: %s\n   Sectie: %s\n   Fragment: %s\n   Relevantiescore: %.4f",
			i+1,
			orUnknown(models.ResolveECLI(c.ECLI, c.Metadata)),
			orUnknown(c.Title()),
			orUnknown(c.Court()),
			orUnknown(c.Date()),
			orUnknown(c.Section()),
			strings.TrimSpace(c.Text),
			c.Similarity,
		)
	}
	return strings.Join(entries, "\n\n")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}
