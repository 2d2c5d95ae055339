package search

// DefaultCap is the number of candidate links a find works with.
const DefaultCap = 5

// Interleave merges per-source link lists round-robin: the first link of every
// list in order, then every second link, and so on, stopping at limit or when
// a whole pass finds nothing left. A link already taken is skipped but still
// counts as progress for that pass, so duplicates never end the merge early.
func Interleave(lists [][]string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)

	for col := 0; len(out) < limit; col++ {
		added := false
		for _, list := range lists {
			if col >= len(list) {
				continue
			}
			added = true
			link := list[col]
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			out = append(out, link)
			if len(out) >= limit {
				break
			}
		}
		if !added {
			break
		}
	}
	return out
}
