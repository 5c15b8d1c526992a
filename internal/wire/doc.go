// Package wire carries envelopes over UDP as OSC packets.
//
// Decode flattens bundles into envelopes in packet order. Sender owns a single
// unconnected UDP socket; each Send is one WriteTo, so concurrent callers never
// interleave datagrams. Serve runs a single read loop and hands each datagram to
// the handler synchronously, so the next read waits until the handler returns.
package wire
