// Package model implements the node address space served to clients.
//
// The address space is a tree of nodes rooted at the Objects folder:
//
//	Objects (ns=0)
//	├── Server_NamespaceArray   String[] of registered namespace URIs
//	└── Devices (folder)
//	    └── <device> (folder)
//	        ├── <device>_State        attribute
//	        ├── <device>_Temperature  attribute
//	        └── <device>_TurnOn       method
//
// Three node kinds exist:
//   - Folder: groups other nodes
//   - AttributeNode: a typed, readable value with status and timestamps
//   - MethodNode: a callable operation owned by an object
//
// # Namespaces
//
// Index 0 is reserved for the core namespace and index 1 for the server
// URI. Applications register further URIs; registration is idempotent.
//
// # Change Notification
//
// AttributeNode invokes its change listeners after the value or status
// changes, outside its own lock. Listeners must not block.
package model
