// Package wire defines the CBOR wire format of the smart-bulb protocol.
//
// Every frame carries one Message envelope encoded with integer keys:
//
//	{
//	  1: kind,        // 1 request, 2 response, 3 notification, 4 control
//	  2: messageId,   // correlates a response with its request (0 otherwise)
//	  3: code,        // Operation for requests, Status for responses
//	  4: payload,     // operation specific body, embedded CBOR
//	  5: diagnostic   // optional human readable error text
//	}
//
// Payload bodies are kept as raw CBOR until the receiver knows which
// operation they belong to, so decoding never goes through untyped maps.
//
// # Addressing
//
// Nodes are identified by a NodeID, a namespace index plus a string
// identifier, written in text as "ns=<index>;s=<id>".
//
// # Values
//
// Attribute values travel as a Variant, a value tagged with its DataType,
// wrapped in a DataValue that adds a Status and the source and server
// timestamps.
package wire
