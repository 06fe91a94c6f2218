// Package chat implements the room registry and broadcast engine behind the
// relay.
//
// A Registry owns every Room for the lifetime of the process. Rooms hold the
// current membership and a bounded message history, and fan envelopes out to
// their members through the Conn interface. The Router turns the raw frames of
// a single connection into Room operations via a per-connection Session.
//
// The package has no knowledge of the wire transport; anything that can send
// whole messages and be closed with a status code can be a member.
package chat
