package errorsx

// String turns string constants into errors usable as
// sentinels with errors.Is and errors.As.
type String string

func (t String) Error() string {
	return string(t)
}
