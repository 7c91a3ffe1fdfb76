// Package protocol implements the wire-level pieces of the TeamSpeak 3
// ServerQuery protocol: the string escaping codec, the key=value record
// parser, terminator (status) lines, notification lines and a small
// command builder.
//
// Everything here is pure: no I/O, no shared state.  The session engine
// in package serverquery builds on these functions, and collaborators
// building their own commands should use [Encode] for every value they
// place on the wire and [Decode] (or [ParseRecord]) for every value they
// take off it.
//
// Wire shape:
//
//	TS3                                        greeting, first line
//	cid=1 channel_name=Lobby|cid=2 ...          response body (records split by |)
//	notifycliententerview clid=5 ...            unsolicited event, any time
//	error id=0 msg=ok                           terminator, ends every response
package protocol
