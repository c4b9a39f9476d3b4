package portscan

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

func listen(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return l.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func newTestScanner() *Scanner {
	return New(logger.Noop(), noop.NewTracerProvider().Tracer("test"), WithConcurrency(16))
}

func TestScannerFindsOpenPorts(t *testing.T) {
	t.Parallel()

	open, closed := listen(t), closedPort(t)
	settings := domain.DefaultSettings().Merge(domain.Payload{
		domain.SettingPortRange:     strconv.Itoa(open) + "," + strconv.Itoa(closed),
		domain.SettingPortTimeoutMS: 500,
	})

	var progress []domain.Payload
	summary, err := newTestScanner().Run(context.Background(), domain.PhaseInput{
		Phase:    domain.PhasePortScan,
		Settings: settings,
		Targets:  []string{"127.0.0.1", "127.0.0.1:8443"},
		Progress: func(p domain.Payload) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	rows := domain.OpenPortsFrom(summary)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.OpenPort{Host: "127.0.0.1", Port: open, Service: ServiceName(open)}, rows[0])
	assert.Equal(t, 1, summary.GetInt("hosts_scanned", 0))
	assert.Equal(t, 2, summary.GetInt("ports_per_host", 0))
	require.Len(t, progress, 1)
	assert.Equal(t, 1, progress[0].GetInt("hosts_done", 0))
}

func TestScannerRejectsBadPortSpec(t *testing.T) {
	t.Parallel()

	settings := domain.Payload{domain.SettingPortRange: "80-bogus"}
	summary, err := newTestScanner().Run(context.Background(), domain.PhaseInput{Settings: settings, Targets: []string{"127.0.0.1"}})
	require.Error(t, err)
	assert.False(t, domain.IsFatal(err))
	assert.Empty(t, domain.OpenPortsFrom(summary))
}

func TestScannerCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScanner().Run(ctx, domain.PhaseInput{
		Settings: domain.Payload{domain.SettingPortRange: "1-50"},
		Targets:  []string{"127.0.0.1"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParsePorts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    string
		want    []int
		wantLen int
		wantErr bool
	}{
		{name: "single", spec: "443", want: []int{443}},
		{name: "list and range", spec: "80, 443,8000-8002", want: []int{80, 443, 8000, 8001, 8002}},
		{name: "duplicates collapse", spec: "22,22,20-23", want: []int{20, 21, 22, 23}},
		{name: "preset", spec: "top-100", wantLen: 100},
		{name: "preset case insensitive", spec: "Common-DB", wantLen: 14},
		{name: "preset plus port", spec: "common-admin,65535", wantLen: 15},
		{name: "all", spec: "all", wantLen: 65535},
		{name: "zero port", spec: "0", wantErr: true},
		{name: "too large", spec: "70000", wantErr: true},
		{name: "reversed range", spec: "90-80", wantErr: true},
		{name: "unknown preset", spec: "top-5", wantErr: true},
		{name: "empty", spec: " , ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePorts(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want != nil {
				assert.Equal(t, tt.want, got)
			}
			if tt.wantLen > 0 {
				assert.Len(t, got, tt.wantLen)
			}
		})
	}
}

func TestTop1000ContainsTop100(t *testing.T) {
	t.Parallel()

	top1000, err := ParsePorts("top-1000")
	require.NoError(t, err)
	for _, p := range top100 {
		assert.Contains(t, top1000, p)
	}
	assert.IsIncreasing(t, top1000)
}

func TestHostsOf(t *testing.T) {
	t.Parallel()

	got := hostsOf([]string{"b.example.com", "https://a.example.com:8443/x", "a.example.com", " ", "b.example.com:80"})
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, got)
}
