package stdx

// Zero returns the zero value for the type parameter T.
func Zero[T any]() T {
	var zero T
	return zero
}
