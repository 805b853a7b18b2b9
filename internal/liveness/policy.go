package liveness

import "fmt"

// Policy decides whether a probed entry stays in the playlist.
type Policy string

const (
	// PolicyStrict keeps an entry only when its probe returned 2xx.
	PolicyStrict Policy = "strict"
	// PolicyPermissive drops an entry only on an explicit 404. A timeout or a
	// 403 from the build host says nothing about what the viewer will see.
	PolicyPermissive Policy = "permissive"
)

// ParsePolicy accepts "strict" or "permissive".
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyStrict, PolicyPermissive:
		return Policy(s), nil
	}
	return "", fmt.Errorf("liveness: unknown policy %q", s)
}

// Include applies the policy to one probe result.
func (p Policy) Include(r Result) bool {
	if p == PolicyStrict {
		return r.Status == StatusOK
	}
	return r.Status != StatusNotFound
}
