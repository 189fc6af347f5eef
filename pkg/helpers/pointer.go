package helpers

// Ptr returns a pointer to a copy of v. SDK request structs use pointers for optional
// scalars like temperature and stream flags.
func Ptr[T any](v T) *T {
	return &v
}
