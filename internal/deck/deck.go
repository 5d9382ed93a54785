// Package deck parses feff.inp style card decks: a keyword line optionally
// followed by continuation rows that belong to it.
package deck

import (
	"regexp"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

var keywordPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Row is one continuation line split into fields.
type Row struct {
	Fields []string
	Line   int
}

// Card is a keyword with its same-line values and continuation rows.
type Card struct {
	Keyword       string
	Values        []string
	Continuations []Row
	Line          int
}

// Deck is an ordered card list.
type Deck struct {
	Cards []Card
}

// Parse reads a card deck. Comment lines (#, !, *) and inline comments after
// '!' or '#' are ignored. A data row before the first card is rejected with
// INPUT.INVALID_CARD.
func Parse(text string) (*Deck, error) {
	d := &Deck{}
	for i, raw := range numeric.SplitLines(text) {
		lineNo := i + 1
		if numeric.IsComment(raw, numeric.DefaultCommentPrefixes) {
			continue
		}
		line := stripInlineComment(raw)
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if keywordPattern.MatchString(fields[0]) {
			d.Cards = append(d.Cards, Card{
				Keyword: strings.ToUpper(fields[0]),
				Values:  fields[1:],
				Line:    lineNo,
			})
			continue
		}

		if len(d.Cards) == 0 {
			return nil, core.InputError("INPUT.INVALID_CARD",
				"line %d: continuation row %q appears before any card keyword", lineNo, strings.TrimSpace(line))
		}
		last := &d.Cards[len(d.Cards)-1]
		last.Continuations = append(last.Continuations, Row{Fields: fields, Line: lineNo})
	}
	return d, nil
}

func stripInlineComment(line string) string {
	if idx := strings.IndexAny(line, "!#"); idx >= 0 {
		return line[:idx]
	}
	return line
}

// Find returns the first card matching any of the keywords.
func (d *Deck) Find(keywords ...string) (*Card, bool) {
	for i := range d.Cards {
		for _, k := range keywords {
			if d.Cards[i].Keyword == strings.ToUpper(k) {
				return &d.Cards[i], true
			}
		}
	}
	return nil, false
}

// Has reports whether any of the keywords is present.
func (d *Deck) Has(keywords ...string) bool {
	_, ok := d.Find(keywords...)
	return ok
}

// Numbers returns the numeric same-line values of the card.
func (c *Card) Numbers() []float64 {
	return numeric.ParseLine(strings.Join(c.Values, " "))
}

// Number returns the idx-th numeric value or fallback when absent.
func (c *Card) Number(idx int, fallback float64) float64 {
	nums := c.Numbers()
	if idx < len(nums) {
		return nums[idx]
	}
	return fallback
}

// Text returns the same-line values joined by single spaces.
func (c *Card) Text() string {
	return strings.Join(c.Values, " ")
}
