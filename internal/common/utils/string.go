package utils

// StringOrNil returns nil for an empty string, for NULL columns.
func StringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringFromPtr dereferences s, returning "" for nil.
func StringFromPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
