package graph

// Node is the sole entity in the graph.
type Node struct {
	ID       NodeID
	Parent   NodeID
	Name     string
	Value    Value
	TypeTag  string
	Meta     map[string]Value
	Version  uint64
	Children map[string]NodeID // child name -> child id
}

func newNode(id, parent NodeID, name string) *Node {
	return &Node{
		ID:       id,
		Parent:   parent,
		Name:     name,
		Value:    None(),
		Meta:     make(map[string]Value),
		Children: make(map[string]NodeID),
	}
}

// clone returns a shallow-independent copy suitable for handing to a
// watcher callback as an "old value" snapshot without risking the
// callback observing concurrent kernel mutation.
func (n *Node) clone() *Node {
	cp := *n
	cp.Meta = make(map[string]Value, len(n.Meta))
	for k, v := range n.Meta {
		cp.Meta[k] = v
	}
	cp.Children = make(map[string]NodeID, len(n.Children))
	for k, v := range n.Children {
		cp.Children[k] = v
	}
	return &cp
}
