package discovery

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/smartbulb/smartbulb-go/pkg/version"
)

// TXT record keys.
const (
	TXTKeyPath      = "path"
	TXTKeyNamespace = "ns"
	TXTKeyVersion   = "v"
)

// Maximum length of a single TXT string (key=value) per RFC 6763.
const maxTXTStringLen = 255

// ErrMissingTXT is returned when a required TXT key is absent.
var ErrMissingTXT = errors.New("missing TXT record")

// ErrTXTTooLong is returned when a key=value pair does not fit one TXT string.
var ErrTXTTooLong = errors.New("TXT record too long")

// TXTRecordMap maps TXT keys to values.
type TXTRecordMap map[string]string

// ServerInfo is what a server advertises.
type ServerInfo struct {
	// Instance is the DNS-SD instance name, usually the server name.
	Instance string

	// Port is the listening TCP port.
	Port int

	// Path is the endpoint path, e.g. "/SmartBulbServer".
	Path string

	// NamespaceURI is the first application namespace.
	NamespaceURI string

	// Version is the protocol version, "major.minor".
	Version string
}

// EncodeServerTXT builds the TXT records for info. An empty Version
// advertises version.Current.
func EncodeServerTXT(info ServerInfo) (TXTRecordMap, error) {
	v := info.Version
	if v == "" {
		v = version.Current
	}
	if _, err := version.Parse(v); err != nil {
		return nil, err
	}
	txt := TXTRecordMap{TXTKeyVersion: v}
	if info.Path != "" {
		txt[TXTKeyPath] = info.Path
	}
	if info.NamespaceURI != "" {
		txt[TXTKeyNamespace] = info.NamespaceURI
	}
	for k, val := range txt {
		if len(k)+1+len(val) > maxTXTStringLen {
			return nil, fmt.Errorf("%w: %s", ErrTXTTooLong, k)
		}
	}
	return txt, nil
}

// DecodeServerTXT parses TXT records into path, namespace and version.
// The version is mandatory.
func DecodeServerTXT(txt TXTRecordMap) (ServerInfo, error) {
	v, ok := txt[TXTKeyVersion]
	if !ok {
		return ServerInfo{}, fmt.Errorf("%w: %s", ErrMissingTXT, TXTKeyVersion)
	}
	if _, err := version.Parse(v); err != nil {
		return ServerInfo{}, err
	}
	return ServerInfo{
		Path:         txt[TXTKeyPath],
		NamespaceURI: txt[TXTKeyNamespace],
		Version:      v,
	}, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings. A bare key maps to "".
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		if !found {
			v = ""
		}
		txt[k] = v
	}
	return txt
}
