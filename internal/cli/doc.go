// Package cli implements the upsmon command-line interface.
//
// Commands are defined with cobra and registered on rootCmd from init
// functions. Each command loads the configuration, builds the collaborators it
// needs (SSH session manager, sink, audit log) and hands them to the monitor,
// the dashboard or the file bridge. Errors bubble up as *errors.Error values
// and are rendered once, by Execute.
package cli
