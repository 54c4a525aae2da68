package socketio

import (
	"testing"
)

func TestParseEventPacket(t *testing.T) {
	pkt, err := parseEventPacket(`2/admin,12["ping",{"a":1}]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pkt.Namespace != "/admin" || pkt.ID == nil || *pkt.ID != 12 || pkt.Event != "ping" {
		t.Fatalf("unexpected packet %+v", pkt)
	}
	if len(pkt.Args) != 1 || string(pkt.Args[0]) != `{"a":1}` {
		t.Fatalf("unexpected args %s", pkt.Args)
	}

	pkt, err = parseEventPacket(`2["client-event"]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pkt.Namespace != "/" || pkt.ID != nil || len(pkt.Args) != 0 {
		t.Fatalf("unexpected packet %+v", pkt)
	}
}

func TestParseEventPacket_Invalid(t *testing.T) {
	for _, payload := range []string{"", `0{}`, `2`, `2[]`, `2[1]`, `2{"a":1}`, `2[`} {
		if _, err := parseEventPacket(payload); err == nil {
			t.Fatalf("expected error for %q", payload)
		}
	}
}

func TestParseOptionalNamespace(t *testing.T) {
	ns, rest := parseOptionalNamespace(`/admin`)
	if ns != "/admin" || rest != "" {
		t.Fatalf("got %q %q", ns, rest)
	}
	ns, rest = parseOptionalNamespace(`{"token":"x"}`)
	if ns != "/" || rest != `{"token":"x"}` {
		t.Fatalf("got %q %q", ns, rest)
	}
}

func TestBuildPackets(t *testing.T) {
	got, err := buildEventPacket("/", "history-3", map[string]int{"epoch": 1})
	if err != nil {
		t.Fatal(err)
	}
	if got != `2["history-3",{"epoch":1}]` {
		t.Fatalf("unexpected event packet %s", got)
	}

	got, err = buildConnectPacket("/", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if got != `0{"sid":"abc"}` {
		t.Fatalf("unexpected connect packet %s", got)
	}

	got, err = buildAckPacket("/admin", 4)
	if err != nil {
		t.Fatal(err)
	}
	if got != `3/admin,4[]` {
		t.Fatalf("unexpected ack packet %s", got)
	}

	if string(frame(got)) != `43/admin,4[]` {
		t.Fatalf("unexpected frame %s", frame(got))
	}
}
