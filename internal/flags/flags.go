package flags

// Static is the feature gate for the throttling mechanism, fixed at startup.
type Static struct {
	enabled  bool
	disabled map[string]struct{}
}

func NewStatic(enabled bool, disabledWorkers []string) *Static {
	s := &Static{enabled: enabled, disabled: make(map[string]struct{}, len(disabledWorkers))}
	for _, w := range disabledWorkers {
		s.disabled[w] = struct{}{}
	}
	return s
}

func (s *Static) Enabled() bool { return s.enabled }

// EnabledFor also honours the global switch.
func (s *Static) EnabledFor(worker string) bool {
	if !s.enabled {
		return false
	}
	_, off := s.disabled[worker]
	return !off
}
