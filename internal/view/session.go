package view

import (
	"encoding/binary"
	"hash/fnv"
	"slices"
	"strings"

	"depenses/internal/core"
)

// Session is the per-client state that outlives a single computation. The
// owner stores it between requests; every method returns a new value.
type Session struct {
	Pages     PageStates
	Accordion Accordion

	fingerprint uint64
	synced      bool
}

// NewSession returns a session with default pagination and no open groups.
func NewSession() Session {
	return Session{
		Pages:     PageStates{},
		Accordion: Accordion{Command: CommandDefault},
	}
}

// Fingerprint identifies the inputs whose change resets pagination: the record
// set, the search text and the active filters.
func Fingerprint(records []core.Expense, search string, f Filters) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeStr := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	writeInt := func(n int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}

	for _, e := range records {
		writeStr(e.ID)
		writeInt(e.UpdatedAt.UnixNano())
	}
	writeInt(int64(len(records)))
	writeStr(search)

	statuses := make([]string, len(f.BalanceStatus))
	for i, s := range f.BalanceStatus {
		statuses[i] = string(s)
	}
	slices.Sort(statuses)
	writeStr(strings.Join(statuses, ","))
	if f.HasRemark {
		writeStr("remark")
	}
	return h.Sum64()
}

// Sync records fp and reports whether it differs from the last one seen.
// On a change every day's pagination restarts, except on the first sync of a
// session: there is nothing earlier to invalidate, so page choices made
// before the first render survive.
func (s Session) Sync(fp uint64) (Session, bool) {
	if s.Pages == nil {
		s.Pages = PageStates{}
	}
	if s.synced && s.fingerprint == fp {
		return s, false
	}
	if s.synced {
		s.Pages = s.Pages.Reset()
	}
	s.fingerprint = fp
	s.synced = true
	return s, true
}
