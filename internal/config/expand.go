package config

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ExpandTilde replaces ~ or ~/path with the user's home directory.
// Does not support ~username syntax - just ~ for the current user.
func ExpandTilde(path string) string {
	if path == "" {
		return path
	}

	// Handle ~/path
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return unchanged if we can't get home
		}
		return filepath.Join(home, path[2:])
	}

	// Handle standalone ~
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}

	return path
}

// Expand replaces variables in a local path and then expands a leading ~.
// Supported variables:
//   - ${HOME}     - user's home directory
//   - ${USER}     - current username
//   - ${HOSTNAME} - this machine's hostname
//
// Any other ${NAME} is taken from the environment, empty when unset.
func Expand(s string) string {
	if s == "" {
		return s
	}

	result := s
	if strings.Contains(result, "$") {
		result = os.Expand(result, func(name string) string {
			switch name {
			case "HOME":
				return getHome()
			case "USER":
				return getUser()
			case "HOSTNAME":
				return getHostname()
			}
			return os.Getenv(name)
		})
	}

	return ExpandTilde(result)
}

func getHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "~"
	}
	return home
}

func getUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

func getHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}

// LineEnding maps the config spelling to the bytes sent after a command.
func LineEnding(s string) string {
	switch strings.ToLower(s) {
	case "cr", `\r`:
		return "\r"
	case "lf", `\n`:
		return "\n"
	case "crlf", `\r\n`:
		return "\r\n"
	}
	return s
}
