package view

import (
	"testing"

	"github.com/stretchr/testify/require"

	"depenses/internal/core"
)

func TestAccordionCommandsAreOneShot(t *testing.T) {
	days := Compute(sample(), Query{}).Days
	all := []string{"2025-03-10-Groceries", "2025-03-10-Coffee", "2025-03-09-Coffee"}

	a := Accordion{Command: CommandAllOpen}.Apply(days, "", Filters{}, true)
	require.Equal(t, CommandDefault, a.Command)
	require.ElementsMatch(t, all, a.Open)

	// With the command consumed, the set survives another pass untouched.
	a = a.Toggle("2025-03-10-Coffee").Apply(days, "", Filters{}, false)
	require.ElementsMatch(t, []string{"2025-03-10-Groceries", "2025-03-09-Coffee"}, a.Open)

	a.Command = CommandAllClosed
	a = a.Apply(days, "", Filters{}, false)
	require.Equal(t, CommandDefault, a.Command)
	require.Empty(t, a.Open)
}

func TestAccordionAutoExpandsOnSearch(t *testing.T) {
	res := Compute(sample(), Query{Search: "coffee"})
	a := Accordion{Command: CommandDefault}.Apply(res.Days, "coffee", Filters{}, true)
	require.ElementsMatch(t, []string{"2025-03-10-Coffee", "2025-03-09-Coffee"}, a.Open)

	res = Compute(sample(), Query{Filters: Filters{HasRemark: true}})
	a = Accordion{}.Apply(res.Days, "", Filters{HasRemark: true}, true)
	require.Equal(t, []string{"2025-03-09-Coffee"}, a.Open)
}

func TestAccordionToggleSurvivesActiveSearch(t *testing.T) {
	res := Compute(sample(), Query{Search: "coffee"})
	a := Accordion{}.Apply(res.Days, "coffee", Filters{}, true)
	require.True(t, a.IsOpen("2025-03-10-Coffee"))

	// Same search, same records: the user's collapse stands.
	a = a.Toggle("2025-03-10-Coffee").Apply(res.Days, "coffee", Filters{}, false)
	require.False(t, a.IsOpen("2025-03-10-Coffee"))
	require.True(t, a.IsOpen("2025-03-09-Coffee"))

	// A new search expands everything again.
	res = Compute(sample(), Query{Search: "coff"})
	a = a.Apply(res.Days, "coff", Filters{}, true)
	require.True(t, a.IsOpen("2025-03-10-Coffee"))
}

func TestAccordionToggle(t *testing.T) {
	a := Accordion{}.Toggle("k")
	require.True(t, a.IsOpen("k"))
	b := a.Toggle("k")
	require.False(t, b.IsOpen("k"))
	require.True(t, a.IsOpen("k"))
}

func TestParseAccordionCommand(t *testing.T) {
	require.Equal(t, CommandAllOpen, ParseAccordionCommand("all-open"))
	require.Equal(t, CommandDefault, ParseAccordionCommand("expand"))
}

func TestSessionSyncResetsPages(t *testing.T) {
	records := sample()
	s, changed := NewSession().Sync(Fingerprint(records, "", Filters{}))
	require.True(t, changed)
	s.Pages = s.Pages.SetPage("2025-03-10", 2)

	s, changed = s.Sync(Fingerprint(records, "", Filters{}))
	require.False(t, changed)
	require.Equal(t, 2, s.Pages.For("2025-03-10").CurrentPage)

	s, changed = s.Sync(Fingerprint(records, "cof", Filters{}))
	require.True(t, changed)
	require.Equal(t, 1, s.Pages.For("2025-03-10").CurrentPage)

	s.Pages = s.Pages.SetPage("2025-03-10", 2)
	s, _ = s.Sync(Fingerprint(records[:3], "cof", Filters{}))
	require.Equal(t, 1, s.Pages.For("2025-03-10").CurrentPage)
}

func TestFirstSyncKeepsPagesChosenBeforeRender(t *testing.T) {
	s := NewSession()
	s.Pages = s.Pages.SetPage("2025-03-10", 2)

	s, changed := s.Sync(Fingerprint(sample(), "", Filters{}))
	require.True(t, changed)
	require.Equal(t, 2, s.Pages.For("2025-03-10").CurrentPage)
}

func TestFingerprintSeesSearchCase(t *testing.T) {
	records := sample()
	require.NotEqual(t,
		Fingerprint(records, "Coffee", Filters{}),
		Fingerprint(records, "coffee", Filters{}))
}

func TestFingerprintIgnoresFilterOrder(t *testing.T) {
	records := sample()
	a := Fingerprint(records, "", Filters{BalanceStatus: []core.BalanceStatus{core.IOwe, core.OwedToMe}})
	b := Fingerprint(records, "", Filters{BalanceStatus: []core.BalanceStatus{core.OwedToMe, core.IOwe}})
	require.Equal(t, a, b)
	require.NotEqual(t, a, Fingerprint(records, "", Filters{}))
}
