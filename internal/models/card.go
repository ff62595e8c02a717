package models

// Card is a single vocabulary entry inside a unit. Cards are immutable and
// identified by their position in the unit's ordered list; progress records
// reference that positional index.
type Card struct {
	Term            string            `json:"term"`
	Translation     string            `json:"translation"`
	AltTranslations map[string]string `json:"alt_translations,omitempty"`
}

// Mode selects which cards make up the working deck.
type Mode string

const (
	ModeAll   Mode = "all"   // every card in the unit
	ModeAgain Mode = "again" // only cards flagged for review, minus mastered ones
)

// Valid reports whether m is a known study mode.
func (m Mode) Valid() bool {
	return m == ModeAll || m == ModeAgain
}
