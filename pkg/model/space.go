package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Well-known nodes in the core namespace.
var (
	ObjectsFolderID  = wire.NodeID{Namespace: 0, ID: "Objects"}
	NamespaceArrayID = wire.NodeID{Namespace: 0, ID: "Server_NamespaceArray"}
)

// AddressSpace is the tree of nodes served to clients.
// It is safe for concurrent use.
type AddressSpace struct {
	mu       sync.RWMutex
	nodes    map[wire.NodeID]Node
	children map[wire.NodeID][]wire.NodeID

	namespaces *NamespaceTable
	nsArray    *AttributeNode
}

// NewAddressSpace creates an address space holding the Objects folder
// and the namespace array attribute.
func NewAddressSpace(serverURI string) *AddressSpace {
	s := &AddressSpace{
		nodes:      make(map[wire.NodeID]Node),
		children:   make(map[wire.NodeID][]wire.NodeID),
		namespaces: NewNamespaceTable(serverURI),
	}

	s.nodes[ObjectsFolderID] = &Folder{nodeBase: nodeBase{
		id:          ObjectsFolderID,
		browseName:  "Objects",
		displayName: "Objects",
	}}

	s.nsArray = newAttributeNode(nodeBase{
		id:          NamespaceArrayID,
		browseName:  "NamespaceArray",
		displayName: "NamespaceArray",
		parent:      ObjectsFolderID,
	}, wire.TypeStringArray, AccessReadOnly)
	s.insert(s.nsArray)
	s.publishNamespaces()

	return s
}

// RegisterNamespace adds uri to the namespace table and returns its index.
// Registering an existing URI returns the existing index.
func (s *AddressSpace) RegisterNamespace(uri string) uint16 {
	idx := s.namespaces.Register(uri)
	s.publishNamespaces()
	return idx
}

// NamespaceIndex returns the index of uri.
func (s *AddressSpace) NamespaceIndex(uri string) (uint16, bool) {
	return s.namespaces.Index(uri)
}

// Namespaces returns all namespace URIs in index order.
func (s *AddressSpace) Namespaces() []string {
	return s.namespaces.URIs()
}

func (s *AddressSpace) publishNamespaces() {
	_ = s.nsArray.SetValue(s.namespaces.URIs(), time.Now())
}

// AddFolder adds a folder under parent.
func (s *AddressSpace) AddFolder(parent, id wire.NodeID, browseName, displayName string) (*Folder, error) {
	f := &Folder{nodeBase: nodeBase{id: id, browseName: browseName, displayName: displayName, parent: parent}}
	if err := s.add(f); err != nil {
		return nil, err
	}
	return f, nil
}

// AddAttribute adds an attribute node of type dt under parent.
// The attribute starts with status BadWaitingForInitialData.
func (s *AddressSpace) AddAttribute(parent, id wire.NodeID, browseName string, dt wire.DataType, access Access) (*AttributeNode, error) {
	a := newAttributeNode(nodeBase{id: id, browseName: browseName, displayName: browseName, parent: parent}, dt, access)
	if err := s.add(a); err != nil {
		return nil, err
	}
	return a, nil
}

// AddMethod adds a method node owned by object.
func (s *AddressSpace) AddMethod(object, id wire.NodeID, browseName string, inputs []Argument, handler MethodHandler) (*MethodNode, error) {
	m := &MethodNode{
		nodeBase: nodeBase{id: id, browseName: browseName, displayName: browseName, parent: object},
		inputs:   append([]Argument(nil), inputs...),
		handler:  handler,
	}
	if err := s.add(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *AddressSpace) add(n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[n.NodeID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.NodeID())
	}
	if _, ok := s.nodes[n.Parent()]; !ok {
		return fmt.Errorf("%w: %s", ErrParentNotFound, n.Parent())
	}
	s.insert(n)
	return nil
}

// insert requires s.mu held or exclusive access.
func (s *AddressSpace) insert(n Node) {
	s.nodes[n.NodeID()] = n
	s.children[n.Parent()] = append(s.children[n.Parent()], n.NodeID())
}

// Node returns the node with the given ID.
func (s *AddressSpace) Node(id wire.NodeID) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// Attribute returns the attribute node with the given ID.
func (s *AddressSpace) Attribute(id wire.NodeID) (*AttributeNode, error) {
	n, err := s.Node(id)
	if err != nil {
		return nil, err
	}
	a, ok := n.(*AttributeNode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAttribute, id)
	}
	return a, nil
}

// Method returns the method node methodID owned by objectID. An unknown
// object is ErrNodeNotFound; an unknown methodID is ErrNotMethod.
func (s *AddressSpace) Method(objectID, methodID wire.NodeID) (*MethodNode, error) {
	if _, err := s.Node(objectID); err != nil {
		return nil, err
	}
	n, err := s.Node(methodID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotMethod, methodID)
	}
	m, ok := n.(*MethodNode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotMethod, methodID)
	}
	if m.Object() != objectID {
		return nil, fmt.Errorf("%w: %s on %s", ErrMethodNotOnObject, methodID, objectID)
	}
	return m, nil
}

// Children returns the direct children of id in insertion order.
func (s *AddressSpace) Children(id wire.NodeID) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	ids := s.children[id]
	out := make([]Node, 0, len(ids))
	for _, cid := range ids {
		out = append(out, s.nodes[cid])
	}
	return out, nil
}

// Browse returns references to the children of id.
func (s *AddressSpace) Browse(id wire.NodeID) ([]wire.Reference, error) {
	children, err := s.Children(id)
	if err != nil {
		return nil, err
	}
	refs := make([]wire.Reference, 0, len(children))
	for _, n := range children {
		ref := wire.Reference{
			NodeID:      n.NodeID(),
			BrowseName:  n.BrowseName(),
			DisplayName: n.DisplayName(),
			NodeClass:   n.NodeClass(),
		}
		if a, ok := n.(*AttributeNode); ok {
			ref.DataType = a.DataType()
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Remove deletes id and all of its descendants.
func (s *AddressSpace) Remove(id wire.NodeID) error {
	if id == ObjectsFolderID || id == NamespaceArrayID {
		return fmt.Errorf("cannot remove %s", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	siblings := s.children[n.Parent()]
	for i, sid := range siblings {
		if sid == id {
			s.children[n.Parent()] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	s.removeSubtree(id)
	return nil
}

func (s *AddressSpace) removeSubtree(id wire.NodeID) {
	for _, cid := range s.children[id] {
		s.removeSubtree(cid)
	}
	delete(s.children, id)
	delete(s.nodes, id)
}

// Len returns the number of nodes, including the well-known ones.
func (s *AddressSpace) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
