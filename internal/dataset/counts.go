package dataset

import "sort"

// Count is the frequency of one distinct value.
type Count struct {
	Value Value
	Count int
}

// ValueCounts counts non-null values, most frequent first. Equal counts
// keep first-seen order.
func ValueCounts(values []Value) []Count {
	index := make(map[string]int)
	var counts []Count
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		k := v.Key()
		if i, ok := index[k]; ok {
			counts[i].Count++
			continue
		}
		index[k] = len(counts)
		counts = append(counts, Count{Value: v, Count: 1})
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	return counts
}

// Least returns the first entry holding the smallest count of an ordered
// ValueCounts result.
func Least(counts []Count) Count {
	least := counts[len(counts)-1]
	for _, c := range counts {
		if c.Count == least.Count {
			return c
		}
	}
	return least
}
