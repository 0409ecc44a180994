package translate

// Level classifies a translation warning.
type Level string

const (
	// LevelInfo marks advisory notes that never block execution.
	LevelInfo Level = "info"
	// LevelCritical marks problems that make the search unsafe to run.
	LevelCritical Level = "critical"
)

// Warning is one message raised while translating a rule. The level is
// decided where the warning is raised, not by inspecting the text.
type Warning struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// HasCritical reports whether any warning is critical.
func HasCritical(warnings []Warning) bool {
	for _, w := range warnings {
		if w.Level == LevelCritical {
			return true
		}
	}
	return false
}

// CriticalMessages returns the critical warning texts in order.
func CriticalMessages(warnings []Warning) []string {
	var out []string
	for _, w := range warnings {
		if w.Level == LevelCritical {
			out = append(out, w.Message)
		}
	}
	return out
}
