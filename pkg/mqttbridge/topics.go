package mqttbridge

import "strings"

// Topics builds the bridge's topic names under a prefix.
type Topics struct {
	Prefix string
}

// Status is the retained online/offline topic.
func (t Topics) Status() string {
	return t.Prefix + "/status"
}

// State is the retained JSON snapshot topic of a device.
func (t Topics) State(deviceID string) string {
	return t.Prefix + "/devices/" + deviceID + "/state"
}

// Command is the command topic of a device.
func (t Topics) Command(deviceID string) string {
	return t.Prefix + "/devices/" + deviceID + "/command"
}

// Result receives the outcome of each command.
func (t Topics) Result(deviceID string) string {
	return t.Prefix + "/devices/" + deviceID + "/result"
}

// CommandFilter matches every device's command topic.
func (t Topics) CommandFilter() string {
	return t.Command("+")
}

// DeviceFromCommand extracts the device ID from a command topic.
func (t Topics) DeviceFromCommand(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/devices/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/command")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
