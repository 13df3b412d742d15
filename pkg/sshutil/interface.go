package sshutil

import "io"

// Transport is an interactive byte stream to a remote shell.
// Both the real Shell and the scripted device in pkg/sshutil/testing satisfy
// this interface.
//
// Reads return io.EOF once the remote side has gone away. Done is closed at
// the same moment, so liveness can be checked without reading.
type Transport interface {
	io.ReadWriteCloser

	// Done is closed when the remote side ends the stream or Close is called.
	Done() <-chan struct{}
}
