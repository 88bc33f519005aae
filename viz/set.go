package viz

import (
	"sort"
)

// sortedKeys returns the members of an id set in ascending order.
func sortedKeys(set map[int]struct{}) []int {
	result := make([]int, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	sort.Ints(result)
	return result
}

func setDifference(lhs []string, rhs []string) []string {
	left := map[string]bool{}
	for _, item := range lhs {
		left[item] = true
	}
	right := map[string]bool{}
	for _, item := range rhs {
		right[item] = true
	}
	for k := range right {
		delete(left, k)
	}
	var result []string
	for k := range left {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func setIntersection(lhs []string, rhs []string) []string {
	right := map[string]bool{}
	for _, item := range rhs {
		right[item] = true
	}
	set := map[string]bool{}
	for _, item := range lhs {
		if right[item] {
			set[item] = true
		}
	}
	var result []string
	for k := range set {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
