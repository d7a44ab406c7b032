// Package channel owns the single realtime connection to the chat relay.
//
// A Channel dials the relay over websocket, performs the register and
// join_conversation handshake, and fans inbound frames out to subscribers as
// typed events. There is exactly one live connection at a time: Connect while
// open tears the old socket down first. The channel never reconnects or
// queues on its own; both are deliberately left to the caller.
package channel
