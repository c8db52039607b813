package stream

// Node exposes the open streams of a runtime by name, for protocol trees
// that resolve paths such as "stream://<name>".
type Node struct {
	rt *Runtime
}

// Node returns the lookup node of rt.
func (rt *Runtime) Node() *Node {
	return &Node{rt: rt}
}

// Name returns the node name.
func (n *Node) Name() string { return "Stream" }

// ReachID returns the handle owning the stream called id.
func (n *Node) ReachID(id string) (*Stream, bool) {
	s := n.rt.Handler(id)
	return s, s != nil
}

// Children lists the reachable ids.
func (n *Node) Children() []string {
	return n.rt.Streams()
}
