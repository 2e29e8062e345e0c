package stand

// ToRaw resolves a chain of handles down to the value at its bottom. Values
// that are not handles are returned unchanged.
func ToRaw(value any) any {
	for {
		handle, ok := value.(*Handle)
		if !ok || handle == nil {
			return value
		}
		value = handle.target
	}
}

// IsWrapped reports whether value is a handle.
func IsWrapped(value any) bool {
	handle, ok := value.(*Handle)
	return ok && handle != nil
}
