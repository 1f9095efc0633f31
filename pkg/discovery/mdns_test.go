package discovery

import (
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerTXTRoundtrip(t *testing.T) {
	info := ServerInfo{
		Instance:     "SmartBulb Server",
		Port:         4841,
		Path:         "/SmartBulbServer",
		NamespaceURI: "urn:smartbulb:devices",
	}
	txt, err := EncodeServerTXT(info)
	require.NoError(t, err)
	assert.Equal(t, "1.0", txt[TXTKeyVersion])

	strs := TXTRecordsToStrings(txt)
	assert.Equal(t, []string{"ns=urn:smartbulb:devices", "path=/SmartBulbServer", "v=1.0"}, strs)

	decoded, err := DecodeServerTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, "/SmartBulbServer", decoded.Path)
	assert.Equal(t, "urn:smartbulb:devices", decoded.NamespaceURI)
	assert.Equal(t, "1.0", decoded.Version)
}

func TestDecodeServerTXTErrors(t *testing.T) {
	_, err := DecodeServerTXT(TXTRecordMap{TXTKeyPath: "/x"})
	assert.ErrorIs(t, err, ErrMissingTXT)

	_, err = DecodeServerTXT(TXTRecordMap{TXTKeyVersion: "one"})
	assert.Error(t, err)
}

func TestEncodeServerTXTTooLong(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	_, err := EncodeServerTXT(ServerInfo{Path: "/" + string(long)})
	assert.ErrorIs(t, err, ErrTXTTooLong)
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "flag", "=x", "b=c=d"})
	assert.Equal(t, TXTRecordMap{"a": "1", "flag": "", "b": "c=d"}, txt)
}

func newEntry(instance string, port int, text []string, v4 ...string) *zeroconf.ServiceEntry {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: instance, Service: ServiceType, Domain: Domain},
	}
	entry.HostName = "bulbhost.local."
	entry.Port = port
	entry.Text = text
	for _, a := range v4 {
		entry.AddrIPv4 = append(entry.AddrIPv4, net.ParseIP(a))
	}
	return entry
}

func TestEntryToService(t *testing.T) {
	entry := newEntry("Bulbs", 4841, []string{"v=1.2", "path=/Bulbs"}, "192.168.1.20")
	svc, err := entryToService(entry)
	require.NoError(t, err)

	assert.Equal(t, "Bulbs", svc.Instance)
	assert.Equal(t, []string{"192.168.1.20"}, svc.Addresses)
	assert.Equal(t, "sb.tcp://192.168.1.20:4841/Bulbs", svc.Endpoint().String())
	assert.Equal(t, "192.168.1.20:4841", svc.Address())

	_, err = entryToService(newEntry("NoVersion", 4841, nil))
	assert.ErrorIs(t, err, ErrMissingTXT)

	_, err = entryToService(newEntry("BadPort", 0, []string{"v=1.0"}))
	assert.Error(t, err)
}

func TestServiceEndpointFallsBackToHost(t *testing.T) {
	svc := &Service{Host: "bulbhost.local.", Port: 4841}
	assert.Equal(t, "sb.tcp://bulbhost.local.:4841/SmartBulbServer", svc.Endpoint().String())
}

func TestMergeAndRemoveAddresses(t *testing.T) {
	addrs := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "10.0.0.2"})
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, addrs)

	addrs = removeAddresses(addrs, newEntry("x", 1, nil, "10.0.0.1"))
	assert.Equal(t, []string{"10.0.0.2"}, addrs)
}

func TestBrowserCompatible(t *testing.T) {
	b, err := NewBrowser(DefaultBrowserConfig())
	require.NoError(t, err)

	assert.True(t, b.Compatible(&Service{Version: "1.0"}))
	assert.True(t, b.Compatible(&Service{Version: "1.7"}))
	assert.False(t, b.Compatible(&Service{Version: "2.0"}))
	assert.False(t, b.Compatible(&Service{Version: "garbage"}))

	_, err = NewBrowser(BrowserConfig{Version: "x"})
	assert.Error(t, err)
}

func TestAdvertiserLifecycle(t *testing.T) {
	adv := NewAdvertiser(DefaultAdvertiserConfig())
	assert.ErrorIs(t, adv.Update(ServerInfo{}), ErrNotAdvertising)
	assert.Error(t, adv.Advertise(ServerInfo{}), "instance name is required")

	err := adv.Advertise(ServerInfo{Instance: "SmartBulb Test", Port: 48410, Path: "/SmartBulbServer"})
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer adv.Stop()

	assert.True(t, adv.Advertising())
	require.NoError(t, adv.Update(ServerInfo{Path: "/Other", NamespaceURI: "urn:x"}))

	adv.Stop()
	assert.False(t, adv.Advertising())
	adv.Stop()
}
