package model

import "github.com/smartbulb/smartbulb-go/pkg/wire"

// Node is the common view of every node in the address space.
type Node interface {
	NodeID() wire.NodeID
	BrowseName() string
	DisplayName() string
	NodeClass() wire.NodeClass
	Parent() wire.NodeID
}

type nodeBase struct {
	id          wire.NodeID
	browseName  string
	displayName string
	parent      wire.NodeID
}

func (n *nodeBase) NodeID() wire.NodeID { return n.id }
func (n *nodeBase) BrowseName() string { return n.browseName }
func (n *nodeBase) DisplayName() string { return n.displayName }
func (n *nodeBase) Parent() wire.NodeID { return n.parent }

// Folder is an object node that only organizes children.
type Folder struct {
	nodeBase
}

// NodeClass implements Node.
func (f *Folder) NodeClass() wire.NodeClass { return wire.NodeClassObject }

var (
	_ Node = (*Folder)(nil)
	_ Node = (*AttributeNode)(nil)
	_ Node = (*MethodNode)(nil)
)
