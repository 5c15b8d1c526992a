// Package relay turns inbound UDP datagrams into dashboard messages.
//
// Each datagram is decoded, converted to the {"address","args"} JSON form and broadcast
// to every registered dashboard. Datagrams are handled one at a time: the read loop does
// not take the next datagram until the current broadcast has settled.
package relay
