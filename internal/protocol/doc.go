// Package protocol defines the messages exchanged between the hive host and
// its workers over TCP, and the framing used to carry them.
//
// Every message is a JSON envelope {"type": ..., "body": ...} prefixed with a
// 4-byte big-endian length. A connection carries any number of request and
// response pairs; the worker always speaks first.
package protocol
