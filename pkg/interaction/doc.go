// Package interaction implements the request/response layer between smart
// bulb clients and the server's address space.
//
// Five operations are defined:
//
//   - Read: get attribute values with status and timestamps
//   - Call: invoke a method on an object
//   - Browse: list the children of a node
//   - CreateSubscription: monitor attributes for changes
//   - DeleteSubscription: tear a subscription down
//
// # Server Usage
//
// The Server dispatches requests against a model.AddressSpace and keeps one
// subscription manager per connection:
//
//	srv := interaction.NewServer(interaction.ServerConfig{Space: space})
//	tsrv := transport.NewServer(transport.ServerConfig{
//	    Address:      ":4841",
//	    OnConnect:    func(c *transport.ServerConn) { srv.Connect(c) },
//	    OnMessage:    func(c *transport.ServerConn, b []byte) { srv.HandleMessage(ctx, c, b) },
//	    OnDisconnect: func(c *transport.ServerConn) { srv.Disconnect(c) },
//	})
//
// # Client Usage
//
//	client, err := interaction.Dial(ctx, "127.0.0.1:4841", interaction.DefaultClientConfig())
//
//	// Read attributes
//	values, err := client.Read(ctx, stateID, tempID)
//
//	// Invoke a method
//	outputs, err := client.Call(ctx, objectID, methodID, wire.MustVariant(int32(75)))
//
//	// Monitor changes
//	sub, err := client.CreateSubscription(ctx, params, items)
//	sub.Items()[0].OnNotification(func(v wire.DataValue) { ... })
//
// A request that fails as a whole returns a *StatusError. Per-node failures
// of Read are reported in the individual DataValue status.
package interaction
