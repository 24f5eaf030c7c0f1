package view

import "slices"

const (
	CommandDefault   AccordionCommand = "default"
	CommandAllOpen   AccordionCommand = "all-open"
	CommandAllClosed AccordionCommand = "all-closed"
)

// AccordionCommand is a one-shot instruction for the expansion state. Apply
// consumes it and always hands back CommandDefault.
type AccordionCommand string

// Accordion holds which label groups are expanded, as GroupKey values.
type Accordion struct {
	Command AccordionCommand
	Open    []string
}

// ParseAccordionCommand returns the matching command, or CommandDefault.
func ParseAccordionCommand(s string) AccordionCommand {
	switch c := AccordionCommand(s); c {
	case CommandAllOpen, CommandAllClosed:
		return c
	}
	return CommandDefault
}

// Apply resolves the pending command against the groups currently shown.
//
// AllOpen expands every group, AllClosed collapses all of them. With no command
// pending, a changed result (changed, as reported by Session.Sync) under an
// active search or filter expands every group so matches are not hidden.
// Otherwise the open set is left as the user toggled it. The returned
// Accordion always carries CommandDefault.
func (a Accordion) Apply(days []DayGroup, search string, f Filters, changed bool) Accordion {
	next := Accordion{Command: CommandDefault}
	switch {
	case a.Command == CommandAllOpen:
		next.Open = groupKeys(days)
	case a.Command == CommandAllClosed:
		next.Open = []string{}
	case changed && (search != "" || f.Active()):
		next.Open = groupKeys(days)
	default:
		next.Open = slices.Clone(a.Open)
	}
	return next
}

// Toggle flips one group and returns the new state.
func (a Accordion) Toggle(key string) Accordion {
	next := Accordion{Command: a.Command}
	if i := slices.Index(a.Open, key); i >= 0 {
		next.Open = slices.Delete(slices.Clone(a.Open), i, i+1)
		return next
	}
	next.Open = append(slices.Clone(a.Open), key)
	return next
}

func (a Accordion) IsOpen(key string) bool {
	return slices.Contains(a.Open, key)
}

func groupKeys(days []DayGroup) []string {
	keys := make([]string, 0)
	for _, d := range days {
		for _, agg := range d.Aggregates {
			keys = append(keys, GroupKey(d.Date, agg.Label))
		}
	}
	return keys
}
