package merge

// UnionDoNotCompress merges compression exemption lists. The result keeps
// the order in which entries were first seen and holds no duplicates.
func UnionDoNotCompress(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, e := range list {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}
