package service

import (
	"sort"
)

// union returns the distinct, sorted values of every list.
func union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, value := range list {
			if value == "" {
				continue
			}
			seen[value] = struct{}{}
		}
	}
	values := make([]string, 0, len(seen))
	for value := range seen {
		values = append(values, value)
	}
	sort.Strings(values)
	return values
}

// distinctInOrder drops repeated values, keeping first occurrences.
func distinctInOrder(values []string) []string {
	seen := make(map[string]bool, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if !seen[value] {
			seen[value] = true
			result = append(result, value)
		}
	}
	return result
}
