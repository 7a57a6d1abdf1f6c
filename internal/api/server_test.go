package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"marketpulse/internal/domain"
	"marketpulse/internal/gather"
	"marketpulse/pkg/marketpulse"
)

type fixedUniverse struct{ u domain.Universe }

func (f fixedUniverse) FetchUniverse(context.Context) domain.Universe { return f.u }

type fixedEngine struct{ r domain.Report }

func (f fixedEngine) Compute(context.Context, []domain.Instrument) domain.Report { return f.r }

func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()
	u := domain.Universe{
		Instruments: []domain.Instrument{{Symbol: "AAA"}, {Symbol: "BBB"}, {Symbol: "CCC"}},
		Source:      "fallback",
		Degraded:    true,
		Reason:      "reference list unavailable",
	}
	r := domain.Report{
		Rows: []domain.Row{
			{Instrument: domain.Instrument{Symbol: "AAA"}, Change: 10, Class: domain.Advance},
			{Instrument: domain.Instrument{Symbol: "BBB"}, Change: -2.5, Class: domain.Decline},
			{Instrument: domain.Instrument{Symbol: "CCC"}, Change: 0, Class: domain.Neutral},
		},
		Advances: 1, Declines: 1, Neutral: 1, Ratio: 1,
	}
	ref := gather.NewRefresher(fixedUniverse{u}, fixedEngine{r}, 0, nil)

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(ref, nil)
	go srv.Serve(lis)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGetSnapshot(t *testing.T) {
	c := NewBreadthClient(startServer(t))
	ctx := context.Background()

	st, err := c.GetSnapshot(ctx, nil)
	require.NoError(t, err)

	var snap marketpulse.Snapshot
	require.NoError(t, FromStruct(st, &snap))
	assert.Equal(t, 1, snap.Advances)
	assert.Equal(t, 1, snap.Declines)
	assert.Equal(t, 3, snap.Total)
	assert.True(t, snap.Degraded)
	assert.Equal(t, "fallback", snap.UniverseSource)
	require.Len(t, snap.Rows, 3)
	assert.Equal(t, "AAA", snap.Rows[0].Symbol)

	req, err := structpb.NewStruct(map[string]any{"sort": "loss", "class": "decline"})
	require.NoError(t, err)
	st, err = c.GetSnapshot(ctx, req)
	require.NoError(t, err)
	require.NoError(t, FromStruct(st, &snap))
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, "BBB", snap.Rows[0].Symbol)
	assert.Equal(t, -2.5, snap.Rows[0].ChangePct)
}

func TestGetSnapshotInvalidClass(t *testing.T) {
	c := NewBreadthClient(startServer(t))
	req, _ := structpb.NewStruct(map[string]any{"class": "up"})
	_, err := c.GetSnapshot(context.Background(), req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRefreshAndUniverse(t *testing.T) {
	c := NewBreadthClient(startServer(t))
	ctx := context.Background()

	st, err := c.Refresh(ctx)
	require.NoError(t, err)
	var snap marketpulse.Snapshot
	require.NoError(t, FromStruct(st, &snap))
	assert.Equal(t, 1.0, snap.ADRatio)
	assert.NotEmpty(t, snap.Warnings)

	st, err = c.GetUniverse(ctx)
	require.NoError(t, err)
	var u marketpulse.Universe
	require.NoError(t, FromStruct(st, &u))
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, u.Symbols)
	assert.True(t, u.Degraded)
}

func TestHealth(t *testing.T) {
	hc := healthpb.NewHealthClient(startServer(t))
	resp, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
