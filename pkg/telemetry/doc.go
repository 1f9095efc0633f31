// Package telemetry drives discovered devices through a connected client.
//
// It offers three flows over a discovery.Registry:
//
//   - BulkRead reads State, Temperature and Brightness of every found device
//     and lists its methods. Unresolved devices are reported as not found.
//   - ExerciseMethods runs a fixed demonstration sequence against one
//     dimmable and one non-dimmable device, waiting a fixed delay before each
//     re-read so the server's periodic sync can catch up.
//   - Monitor subscribes to every resolved attribute for a time window and
//     hands each notification to the configured sinks.
//
// No flow retries. A failed step is reported and the flow moves on.
//
// Sinks receive monitored values. WriterSink prints one line per value:
//
//	[14:03:07] Smart Bulb Pro 001_Temperature: 38.12
//
// InfluxSink writes each value as a smartbulb_telemetry point tagged with
// device and attribute.
package telemetry
