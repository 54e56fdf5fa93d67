package automation

import "regexp"

// matchRegex reports whether pattern matches s. An invalid pattern never
// matches rather than failing the whole trigger dispatch.
func matchRegex(pattern, s string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
