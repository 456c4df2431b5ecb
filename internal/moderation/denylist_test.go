package moderation

import "testing"

func mustDenylist(t *testing.T, terms []string) *Denylist {
	t.Helper()
	d, err := NewDenylist(terms)
	if err != nil {
		t.Fatalf("NewDenylist: %v", err)
	}
	return d
}

func TestMatchFoldsCase(t *testing.T) {
	d := mustDenylist(t, nil)
	cases := []struct {
		text string
		want string
	}{
		{"продам МЕФЕДРОН недорого", "мефедрон"},
		{"Mephedrone for sale", "mephedrone"},
		{"ЗаКлАдКи по городу", "закладки"},
		{"обычное сообщение про погоду", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := d.Match(c.text); got != c.want {
			t.Errorf("Match(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestMatchRespectsWordBoundaries(t *testing.T) {
	d := mustDenylist(t, nil)
	// Terms embedded in longer words must not trigger. Cyrillic letters are
	// outside ASCII \b, so these exercise the explicit boundary classes.
	clean := []string{
		"шишкинский лес на картине",
		"lsdisplay driver update",
		"в мефодиевке",
	}
	for _, text := range clean {
		if got := d.Match(text); got != "" {
			t.Errorf("Match(%q) = %q, want no match", text, got)
		}
	}

	hits := []struct {
		text string
		want string
	}{
		{"шишки, гашиш", "гашиш"},
		{"(lsd)", "lsd"},
		{"меф!", "меф"},
	}
	for _, c := range hits {
		if got := d.Match(c.text); got != c.want {
			t.Errorf("Match(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestMatchTagIsSubstringAndFolded(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"narcotic", "narcotic"},
		{"illegal drugs", "drugs"},
		{"Handgun Weapon", "weapon"},
		{"adult content", "adult content"},
		{"racy content", "racy content"},
		{"NSFW artwork", "nsfw"},
		{"landscape", ""},
		{"cat", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := MatchTag(c.name); got != c.want {
			t.Errorf("MatchTag(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestMatchTagIgnoresCaptionTermList(t *testing.T) {
	// The tag set is fixed; custom caption terms neither extend nor shrink it.
	if got := MatchTag("mephedrone"); got != "" {
		t.Errorf("caption term matched as a tag: %q", got)
	}
	if got := MatchTag("weapon"); got != "weapon" {
		t.Errorf("MatchTag(weapon) = %q", got)
	}
}

func TestCustomTermsReplaceDefaults(t *testing.T) {
	d := mustDenylist(t, []string{"spam", "  Casino  "})
	if got := d.Match("visit our CASINO tonight"); got != "casino" {
		t.Errorf("Match = %q, want casino", got)
	}
	if got := d.Match("мефедрон"); got != "" {
		t.Errorf("default term matched with a custom list: %q", got)
	}
}
