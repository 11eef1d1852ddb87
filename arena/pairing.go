package arena

import "sort"

// swissPair builds the next round's pairings: players sorted by points,
// then Buchholz tiebreak, then address; adjacent players paired, with a
// swap-ahead pass to dodge repeat pairings when an alternative exists.
// Best-effort, not globally optimal. With an odd field the lowest-ranked
// player with the fewest byes so far sits out.
func swissPair(t *Tournament) (pairs [][2]string, byes []string) {
	ranked := t.ranked()
	order := make([]string, len(ranked))
	for i, s := range ranked {
		order[i] = s.Address
	}

	if len(order)%2 == 1 {
		bye := pickBye(t, order)
		byes = append(byes, bye)
		for i, addr := range order {
			if addr == bye {
				order = append(order[:i], order[i+1:]...)
				break
			}
		}
	}

	used := make(map[string]bool, len(order))
	for i := 0; i < len(order); i++ {
		a := order[i]
		if used[a] {
			continue
		}
		// First unused opponent below a that a has not already faced.
		pick := -1
		fallback := -1
		for j := i + 1; j < len(order); j++ {
			b := order[j]
			if used[b] {
				continue
			}
			if fallback == -1 {
				fallback = j
			}
			if !t.played(a, b) {
				pick = j
				break
			}
		}
		if pick == -1 {
			// Every remaining candidate is a repeat; take the least-bad
			// (closest in standing) one.
			pick = fallback
		}
		if pick == -1 {
			break
		}
		used[a] = true
		used[order[pick]] = true
		pairs = append(pairs, [2]string{a, order[pick]})
	}
	return pairs, byes
}

// pickBye chooses the bye recipient: among the lowest-ranked players,
// prefer whoever has sat out least.
func pickBye(t *Tournament, order []string) string {
	cands := append([]string(nil), order...)
	sort.SliceStable(cands, func(i, j int) bool {
		bi, bj := t.Standings[cands[i]].Byes, t.Standings[cands[j]].Byes
		if bi != bj {
			return bi < bj
		}
		// Later in the ranking sits out first.
		return indexOf(order, cands[i]) > indexOf(order, cands[j])
	})
	return cands[0]
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}
