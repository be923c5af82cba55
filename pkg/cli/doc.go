// Package cli implements the moxy command-line interface.
//
// Commands fall into two groups. Server commands (start, stop, status) manage
// a moxy process through its PID file and listen port. Client commands
// (rules, watch) talk to a running server over the admin API and the event
// stream, addressed by the --admin-url persistent flag.
package cli
