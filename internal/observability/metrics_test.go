package observability

import (
	"testing"
	"time"

	"github.com/danmuck/wirerpc/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	peer := Peer{Remote: "127.0.0.1:5555", Handler: "echo", Signed: true, TLS: false}
	RecordServerRequest(peer, 12*time.Millisecond, 128)
	RecordServerError(peer, "internal")
	RecordClientRequest(Peer{Remote: "127.0.0.1:6666", Signed: false, TLS: true}, 24*time.Millisecond, 256)
	RecordClientError(Peer{Remote: "127.0.0.1:6666"}, "timeout")
}

func TestHostnameIsStable(t *testing.T) {
	first := Hostname()
	if first != Hostname() {
		t.Fatalf("hostname changed between calls")
	}
}
