// Package broadcast implements the dashboard fan-out.
//
// Registry owns the set of open dashboard connections. Broadcaster takes a point-in-time
// snapshot of the registry and sends to every handle concurrently, joining all sends
// before returning. A handle whose send fails is removed and closed; its siblings are
// unaffected. Client adapts a gorilla WebSocket connection to the Handle interface and
// runs the ping/pong keep-alive that prunes dead connections.
package broadcast
