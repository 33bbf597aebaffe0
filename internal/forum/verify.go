package forum

import "strings"

// Outcome is the result of the greeting check.
type Outcome int

const (
	Rejected Outcome = iota
	Accepted
)

func (o Outcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "rejected"
}

// Verifier decides whether the greeting payload admits the peer.
type Verifier func(payload string) bool

// Check runs v on payload.  A nil Verifier rejects everything.
func (v Verifier) Check(payload string) Outcome {
	if v != nil && v(payload) {
		return Accepted
	}
	return Rejected
}

// KeywordVerifier accepts a payload containing any of keywords,
// ignoring case.  Blank keywords are skipped.
func KeywordVerifier(keywords ...string) Verifier {
	var kws []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	return func(payload string) bool {
		p := strings.ToLower(payload)
		for _, k := range kws {
			if strings.Contains(p, k) {
				return true
			}
		}
		return false
	}
}

// AnyVerifier accepts every payload that is not blank.
func AnyVerifier() Verifier {
	return func(payload string) bool { return strings.TrimSpace(payload) != "" }
}
