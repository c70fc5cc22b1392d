package service

func Filter[T any](items []T, fn func(T) bool) []T {
	var result []T
	for _, v := range items {
		if fn(v) {
			result = append(result, v)
		}
	}
	return result
}

// IndexOf returns the index of the first item matching fn, or -1.
func IndexOf[T any](items []T, fn func(T) bool) int {
	for i, v := range items {
		if fn(v) {
			return i
		}
	}
	return -1
}

// Contains reports whether any item matches fn.
func Contains[T any](items []T, fn func(T) bool) bool {
	return IndexOf(items, fn) >= 0
}
