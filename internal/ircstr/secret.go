package ircstr

// SecretGuard collects secret buffers and zeroes them on Release.
//
//	var g ircstr.SecretGuard
//	defer g.Release()
//	pass := g.Track(ircstr.NewSecret(raw))
//
// Clearing is best-effort: copies the runtime made of the content (string
// conversions, reallocated slices) are not reachable from the guard.
type SecretGuard struct {
	held []Bytes
}

// Track registers s for release and returns it. Non-secret values are
// returned untracked.
func (g *SecretGuard) Track(s Bytes) Bytes {
	if s.IsSecret() {
		g.held = append(g.held, s)
	}
	return s
}

// Release zeroes every tracked buffer. It is safe to call more than once.
func (g *SecretGuard) Release() {
	for _, s := range g.held {
		s.Release()
	}
	g.held = nil
}
