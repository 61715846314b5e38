package graph

// Proxy is a short-lived handle on a path's resolved node, exposing
// value/type/meta operations in the terms higher layers (selectors,
// entanglement, the marker engine) want without each reimplementing path
// resolution.
type Proxy struct {
	k    *Kernel
	path Path
	id   NodeID
}

// Proxy resolves path against the live graph and returns a Proxy bound to
// whatever node currently sits there. The proxy does not pin the id: if
// the node is deleted and the path later re-vivifies a different node,
// a fresh Proxy call observes the new one.
func (k *Kernel) Proxy(path Path) *Proxy {
	id, _ := k.Resolve(path)
	return &Proxy{k: k, path: path, id: id}
}

// Exists reports whether the path currently resolves to the live node the
// proxy is bound to; it is false when the path is absent or now resolves
// to a different node.
func (p *Proxy) Exists() bool {
	id, ok := p.k.Resolve(p.path)
	return ok && id == p.id
}

// Value returns the proxy's current value, auto-vivifying the path if it
// does not yet exist.
func (p *Proxy) Value() Value {
	id := p.ensure()
	return p.k.Get(id)
}

// Set writes value at the proxy's path, auto-vivifying as needed.
func (p *Proxy) Set(value Value) error {
	id := p.ensure()
	return p.k.Set(id, value)
}

// TypeTag returns the proxy's node's type tag.
func (p *Proxy) TypeTag() string {
	id := p.ensure()
	return p.k.TypeTag(id)
}

// SetTypeTag sets the proxy's node's type tag.
func (p *Proxy) SetTypeTag(tag string) error {
	id := p.ensure()
	return p.k.SetTypeTag(id, tag)
}

// Meta returns meta[key] for the proxy's node.
func (p *Proxy) Meta(key string) (Value, bool) {
	id := p.ensure()
	return p.k.Meta(id, key)
}

// SetMeta sets meta[key] on the proxy's node.
func (p *Proxy) SetMeta(key string, value Value) error {
	id := p.ensure()
	return p.k.SetMeta(id, key, value)
}

// ID returns the resolved node id, auto-vivifying the path.
func (p *Proxy) ID() NodeID {
	return p.ensure()
}

// Path returns the dotted path the proxy was created from.
func (p *Proxy) Path() Path { return p.path }

func (p *Proxy) ensure() NodeID {
	if p.id == "" || !p.Exists() {
		p.id = p.k.Ensure(p.path)
	}
	return p.id
}
