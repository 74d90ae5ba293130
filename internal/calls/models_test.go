package calls

import "testing"

func TestStatusMap_For(t *testing.T) {
	m := StatusMap{OpenDeal: "OPEN_DEAL", Unqualified: "UNQUALIFIED", Contacted: "CONNECTED"}

	cases := map[Verdict]string{
		VerdictQualified:     "OPEN_DEAL",
		"QUALIFIED":          "OPEN_DEAL",
		VerdictUnqualified:   "UNQUALIFIED",
		" Unqualified ":      "UNQUALIFIED",
		VerdictNotApplicable: "CONNECTED",
		"maybe":              "CONNECTED",
		"":                   "CONNECTED",
	}
	for v, want := range cases {
		if got := m.For(v); got != want {
			t.Fatalf("For(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestParseVerdict_EmptyIsNotApplicable(t *testing.T) {
	if got := ParseVerdict("  "); got != VerdictNotApplicable {
		t.Fatalf("expected not_applicable, got %q", got)
	}
}
