package transport

import (
	"errors"
	"testing"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want Endpoint
	}{
		{"sb.tcp://localhost:4841/SmartBulbServer", Endpoint{Host: "localhost", Port: 4841, Path: "/SmartBulbServer"}},
		{"sb.tcp://bulbs.local", Endpoint{Host: "bulbs.local", Port: DefaultPort, Path: DefaultPath}},
		{"sb.tcp://[::1]:5000/x", Endpoint{Host: "::1", Port: 5000, Path: "/x"}},
		{"127.0.0.1:4841", Endpoint{Host: "127.0.0.1", Port: 4841, Path: DefaultPath}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEndpoint(tt.in)
			if err != nil {
				t.Fatalf("ParseEndpoint failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	if ep, _ := ParseEndpoint("sb.tcp://[::1]:5000/x"); ep.Address() != "[::1]:5000" {
		t.Errorf("Address() = %s", ep.Address())
	}
	if ep, _ := ParseEndpoint("localhost:4841"); ep.String() != "sb.tcp://localhost:4841/SmartBulbServer" {
		t.Errorf("String() = %s", ep.String())
	}

	for _, bad := range []string{"http://localhost:80/", "localhost", "sb.tcp://host:99999/"} {
		if _, err := ParseEndpoint(bad); !errors.Is(err, ErrInvalidEndpoint) {
			t.Errorf("%q: expected ErrInvalidEndpoint, got %v", bad, err)
		}
	}
}
