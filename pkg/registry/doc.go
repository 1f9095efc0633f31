// Package registry owns the simulated bulb fleet and exposes it as nodes
// of a model.AddressSpace.
//
// Each device gets a folder under the Devices root with these children:
//
//	{id}_State          String attribute (OFF, ON, ERROR)
//	{id}_Temperature    Double attribute
//	{id}_Brightness     Int32 attribute, dimmable devices only
//	{id}_TurnOn         method
//	{id}_TurnOff        method
//	{id}_SetBrightness  method with one Int32 argument, dimmable devices only
//
// A single fleet lock serializes the periodic update tick, method dispatch
// and fresh reads. Node values are published while the lock is held, so a
// subscriber never observes a half-applied mutation.
package registry
