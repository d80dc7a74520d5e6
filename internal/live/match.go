package live

import "strings"

// matchSubject reports whether subject matches a NATS style pattern, where
// "*" stands for one token and a trailing ">" for one or more.
func matchSubject(pattern, subject string) bool {
	if pattern == "" || subject == "" {
		return false
	}
	for {
		token, restPattern, morePattern := strings.Cut(pattern, ".")
		if token == ">" {
			return !morePattern
		}
		word, restSubject, moreSubject := strings.Cut(subject, ".")
		if token != "*" && token != word {
			return false
		}
		if !morePattern || !moreSubject {
			return morePattern == moreSubject
		}
		pattern, subject = restPattern, restSubject
	}
}
