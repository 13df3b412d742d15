// Package ui provides the plain terminal output used outside the dashboard:
// spinners for one-shot connection steps and tables for printed readings.
//
// # Color Scheme
//
// Colors are ANSI codes for broad terminal compatibility:
//
//	ColorSuccess (green)  - Successful steps, UPS online
//	ColorError   (red)    - Failures, UPS on battery
//	ColorWarning (yellow) - Warnings and skipped steps
//	ColorMuted   (gray)   - Secondary text, timing info
//
// Use DisableColors() to switch to monochrome output (for --no-color).
//
// # Spinner Usage
//
//	s := ui.NewSpinner(os.Stderr, "Connecting to ups-icarus")
//	s.Start()
//	// ... do work ...
//	s.Success() // or s.Fail() or s.Skip()
package ui
