// Package discovery locates smart bulb devices and servers.
//
// # Namespace probing
//
// The Engine reconstructs the node identifiers of a fixed list of expected
// devices without browsing. For each device it reads {prefix}_State in each
// candidate namespace, in order. The first namespace whose read returns a
// good status is the device's home: State, Temperature, TurnOn and TurnOff
// are recorded there, plus Brightness and SetBrightness for dimmable
// devices. Probing then stops for that device.
//
// Read errors are not failures. They mean "not in this namespace" and the
// next candidate is tried. A device that matches nowhere keeps an empty
// identifier set, which is its not-found state.
//
//	engine := discovery.NewEngine(client, discovery.DefaultConfig())
//	reg := engine.Discover(ctx, discovery.DefaultExpected())
//	for _, e := range reg.Entries() {
//	    if !e.Found() {
//	        fmt.Println(e.Name, "not found")
//	    }
//	}
//
// # mDNS (_smartbulb._tcp)
//
// Servers advertise one instance of _smartbulb._tcp.local. The instance name
// is the server name. TXT records carry path (endpoint path), ns (first
// application namespace URI) and v (protocol version, major.minor).
// Browsers aggregate entries by instance name and accept servers whose major
// version matches their own.
package discovery
