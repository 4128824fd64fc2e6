// Package main implements the vidqueue command-line client.
//
// The binary doubles as the daemon (`vidqueue run`) and as the client that
// submits work, inspects queues, and controls jobs over the daemon's unix
// socket.
package main
