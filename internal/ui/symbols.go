package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess = "✓" // Step completed
	SymbolFail    = "✗" // Step failed
	SymbolPending = "○" // Step not started
	SymbolSkipped = "⊘" // Step skipped
)
