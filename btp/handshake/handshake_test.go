package handshake

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mattertools/btp-session/btp/clock/clocktest"
	"github.com/mattertools/btp-session/btp/errs"
)

func hb(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

type fakeTransport struct {
	writes      [][]byte
	disconnects int
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Disconnect(ctx context.Context) {
	f.disconnects++
}

type fakeSink struct{}

func (fakeSink) DeliverMatterMessage(ctx context.Context, msg []byte) {}

func u16(v uint16) *uint16 { return &v }

func TestCreateFromHandshakeRequest_MaxDataSize100(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	req := hb(t, "65 6c 04 00 00 00 b9 00 06")

	e, err := CreateFromHandshakeRequest(ctx, req, u16(100), transport, fakeSink{}, clocktest.NewFakeClock(), nil)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Len(t, transport.writes, 1)
	require.Equal(t, hb(t, "65 6c 04 64 00 06"), transport.writes[0])
}

func TestCreateFromHandshakeRequest_NoMaxDataSize(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	req := hb(t, "65 6c 04 00 00 00 00 00 06")

	e, err := CreateFromHandshakeRequest(ctx, req, nil, transport, fakeSink{}, clocktest.NewFakeClock(), nil)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Len(t, transport.writes, 1)
	require.Equal(t, hb(t, "65 6c 04 17 00 06"), transport.writes[0])
}

func TestCreateFromHandshakeRequest_NoCommonVersion(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	req := hb(t, "65 6c 05 00 00 00 b9 00 06")

	e, err := CreateFromHandshakeRequest(ctx, req, u16(100), transport, fakeSink{}, clocktest.NewFakeClock(), nil)
	require.Error(t, err)
	require.Nil(t, e)
	require.Equal(t, 1, transport.disconnects)
	pe, ok := errs.IsProtocolError(err)
	require.True(t, ok)
	require.Equal(t, errs.NoCommonVersion, pe.Code)
}

func TestNegotiateATTMTUBoundaries(t *testing.T) {
	cases := []struct {
		name        string
		peerATTMTU  uint16
		maxDataSize *uint16
		want        uint16
	}{
		{"no maxDataSize", 185, nil, 23},
		{"peer proposes exactly minimum", 23, u16(100), 100},
		{"linkMtu at or below minimum", 185, u16(10), 23},
		{"clipped by MAX_BTP_MTU", 300, u16(300), 247},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := negotiateATTMTU(tc.peerATTMTU, tc.maxDataSize)
			require.Equal(t, tc.want, got)
		})
	}
}
