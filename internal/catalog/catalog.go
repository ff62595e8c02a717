package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"hanmadi-backend/internal/models"
)

//go:embed data/vocabulary.json
var dataFS embed.FS

// Catalog is the static, read-only mapping from unit key to that unit's
// ordered card list. It never changes after construction; card identity is
// the card's position within its unit.
type Catalog struct {
	units map[string][]models.Card
	order []string
}

// New builds a catalog from an explicit unit map. Used directly in tests;
// production code goes through Load.
func New(units map[string][]models.Card) *Catalog {
	c := &Catalog{units: make(map[string][]models.Card, len(units))}
	for key, cards := range units {
		c.units[key] = cards
		c.order = append(c.order, key)
	}
	sort.Slice(c.order, func(i, j int) bool {
		return unitLess(c.order[i], c.order[j])
	})
	return c
}

// Load parses the embedded vocabulary file.
func Load() (*Catalog, error) {
	raw, err := dataFS.ReadFile("data/vocabulary.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded vocabulary: %w", err)
	}

	var units map[string][]models.Card
	if err := json.Unmarshal(raw, &units); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary data: %w", err)
	}

	return New(units), nil
}

// Cards returns the ordered card list for a unit. An unknown unit yields an
// empty list, not an error.
func (c *Catalog) Cards(unit string) []models.Card {
	return c.units[unit]
}

// Size returns the number of cards in a unit.
func (c *Catalog) Size(unit string) int {
	return len(c.units[unit])
}

// Has reports whether the unit exists in the catalog.
func (c *Catalog) Has(unit string) bool {
	_, ok := c.units[unit]
	return ok
}

// Units returns all unit keys. Keys with a numeric lesson prefix sort
// numerically by that prefix; non-numeric keys follow, alphabetically.
func (c *Catalog) Units() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func unitLess(a, b string) bool {
	na, aNum := leadingNumber(a)
	nb, bNum := leadingNumber(b)

	switch {
	case aNum && bNum:
		if na != nb {
			return na < nb
		}
		return a < b
	case aNum:
		return true
	case bNum:
		return false
	default:
		return a < b
	}
}

// leadingNumber extracts an integer prefix like the "3" in "3과".
func leadingNumber(key string) (int, bool) {
	i := 0
	for i < len(key) && key[i] >= '0' && key[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(key[:i])
	if err != nil {
		return 0, false
	}
	return n, true
}
