// Package wire defines the JSON frame types exchanged with the chat relay
// and the codecs that decode inbound frames without ever failing the caller.
package wire
