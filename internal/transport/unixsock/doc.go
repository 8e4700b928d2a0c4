// Package unixsock is the local-socket transport backend.
//
// Endpoints are file descriptors of AF_UNIX SOCK_SEQPACKET sockets, so every
// Send is delivered as exactly one message. Descriptors travel as SCM_RIGHTS
// and sender credentials come from SO_PEERCRED. The backend is only built on
// linux; importing the package registers it as the "unix" transport.
package unixsock
