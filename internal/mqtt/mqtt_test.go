package mqtt

import (
	"strings"
	"testing"
)

func TestBrokerURL(t *testing.T) {
	cases := map[string]string{
		"":                      "tcp://localhost:1883",
		"mqtt://mosquitto:1883": "tcp://mosquitto:1883",
		" mqtts://broker:8883 ": "ssl://broker:8883",
		"tcp://10.0.0.2:1883":   "tcp://10.0.0.2:1883",
		"ws://broker:9001/mqtt": "ws://broker:9001/mqtt",
	}
	for in, want := range cases {
		if got := BrokerURL(in); got != want {
			t.Fatalf("BrokerURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions("mqtts://broker:8883", "")
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker:8883" {
		t.Fatalf("unexpected servers %v", opts.Servers)
	}
	if !strings.HasPrefix(opts.ClientID, defaultClientID+"-") {
		t.Fatalf("unexpected client id %q", opts.ClientID)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected verified TLS for ssl brokers")
	}

	a := clientOptions("mqtt://broker:1883", "kiln")
	b := clientOptions("mqtt://broker:1883", "kiln")
	if a.ClientID == b.ClientID {
		t.Fatalf("expected distinct client ids, got %q twice", a.ClientID)
	}
	if !strings.HasPrefix(a.ClientID, "kiln-") {
		t.Fatalf("unexpected client id %q", a.ClientID)
	}
}
