package stdx

// Must0 panics when the provided error is not nil. It is meant for
// initialization paths where an error indicates a programming mistake.
func Must0(err error) {
	if err != nil {
		panic(err)
	}
}

// Must1 returns v when err is nil and panics otherwise.
func Must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
