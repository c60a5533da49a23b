package helpers

import "strconv"

func StringToInt(s string) (int, error) {
	return strconv.Atoi(s)
}

// IntFromEnv parses s as an int, falling back to def when empty or invalid.
func IntFromEnv(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
