package assistant

// Ellipsis marks a response that was cut without a sentence boundary.
const Ellipsis = "…"

// EnforceLength bounds r.Response to maxChars runes. The text is cut after
// the last '.' whose index is below maxChars; without one it is hard-cut to
// maxChars runes and Ellipsis is appended. maxChars <= 0 disables the limit.
func EnforceLength(r Reply, maxChars int) Reply {
	if maxChars <= 0 {
		return r
	}
	runes := []rune(r.Response)
	if len(runes) <= maxChars {
		return r
	}
	for i := maxChars - 1; i >= 0; i-- {
		if runes[i] == '.' {
			r.Response = string(runes[:i+1])
			return r
		}
	}
	r.Response = string(runes[:maxChars]) + Ellipsis
	return r
}
