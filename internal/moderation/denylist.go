// Denylist matching for captions, classifier tags, and extracted text.
// Matching is case-folded and bounded by non-letter, non-digit characters so
// a term inside a longer word does not trigger. Go's \b is ASCII-only, which
// breaks on Cyrillic terms, hence the explicit boundary classes.
package moderation

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// defaultDenylist is the built-in set of forbidden terms. Mixed languages
// because the substances advertised in the wild are.
var defaultDenylist = []string{
	"мефедрон",
	"меф",
	"гашиш",
	"шишки",
	"амфетамин",
	"закладка",
	"закладки",
	"mephedrone",
	"amphetamine",
	"mdma",
	"lsd",
	"cocaine",
	"heroin",
}

// forbiddenTags is the fixed set matched against classifier output. Separate
// from the caption term list: classifiers emit category names, not slang, and
// compound names like "adult content" or "handgun weapon" must still hit, so
// matching is by folded substring rather than word boundary.
var forbiddenTags = []string{
	"drugs",
	"narcotic",
	"weapon",
	"nude",
	"porn",
	"nsfw",
	"adult content",
	"racy content",
}

var foldCaser = cases.Fold()

// MatchTag reports the forbidden entry contained in a classifier tag name,
// or "" when the tag is benign.
func MatchTag(name string) string {
	if name == "" {
		return ""
	}
	folded := foldCaser.String(name)
	for _, t := range forbiddenTags {
		if strings.Contains(folded, t) {
			return t
		}
	}
	return ""
}

// Denylist holds compiled word-boundary matchers for a set of terms.
type Denylist struct {
	terms    []string
	patterns []*regexp.Regexp
}

// NewDenylist compiles matchers for the given terms; nil or empty falls back
// to the built-in set.
func NewDenylist(terms []string) (*Denylist, error) {
	if len(terms) == 0 {
		terms = defaultDenylist
	}
	d := &Denylist{}
	for _, t := range terms {
		folded := foldCaser.String(strings.TrimSpace(t))
		if folded == "" {
			continue
		}
		p, err := regexp.Compile(`(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(folded) + `(?:[^\p{L}\p{N}]|$)`)
		if err != nil {
			return nil, fmt.Errorf("compile denylist term %q: %w", t, err)
		}
		d.terms = append(d.terms, folded)
		d.patterns = append(d.patterns, p)
	}
	return d, nil
}

// Match reports the first term found in the text, or "" when clean.
func (d *Denylist) Match(text string) string {
	if text == "" {
		return ""
	}
	folded := foldCaser.String(text)
	for i, p := range d.patterns {
		if p.MatchString(folded) {
			return d.terms[i]
		}
	}
	return ""
}
