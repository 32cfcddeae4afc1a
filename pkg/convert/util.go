package convert

// RefOf returns a pointer to the given value.
func RefOf[T any](value T) *T {
	return &value
}

// ToValueWithDefault converts a pointer to a value type.
// If ptr is nil (or points to an empty string) the default value is returned.
func ToValueWithDefault[T any](ptr *T, defaultValue T) T {
	if ptr == nil {
		return defaultValue
	}

	if str, ok := any(ptr).(*string); ok && *str == "" {
		return defaultValue
	}

	return *ptr
}
