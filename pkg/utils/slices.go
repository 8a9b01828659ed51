package utils

// SliceMap applies a function to each element of a slice and returns a new
// slice with the results.
func SliceMap[Domain, Range any](slice []Domain, fn func(Domain) Range) []Range {
	if slice == nil {
		return nil
	}

	ans := make([]Range, len(slice))
	for idx, elt := range slice {
		ans[idx] = fn(elt)
	}

	return ans
}

// SliceReverse returns a new slice holding the elements in reverse order.
// The input slice is not modified.
func SliceReverse[T any](slice []T) []T {
	if slice == nil {
		return nil
	}

	ans := make([]T, len(slice))
	for idx, elt := range slice {
		ans[len(slice)-1-idx] = elt
	}

	return ans
}
