package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/findmodify"
	"github.com/psaab/rosctl/pkg/restrict"
	"github.com/psaab/rosctl/pkg/schema"
	"github.com/psaab/rosctl/pkg/session"
	"github.com/psaab/rosctl/pkg/session/memory"
)

type testEnv struct {
	dev     *memory.Device
	client  *Client
	metrics *Metrics
}

func startServer(t *testing.T, withEngine bool) *testEnv {
	t.Helper()
	reg := schema.Builtin()
	dev := memory.New(memory.WithSchema(reg))
	dev.Add("ip address", entry.Record{"address": "192.168.88.1/24", "interface": "bridge", "disabled": false})
	dev.Add("ip address", entry.Record{"address": "10.0.0.1/30", "interface": "ether1", "comment": "uplink"})

	m := NewMetrics(prometheus.NewRegistry())
	opts := []ServerOption{WithServerMetrics(m)}
	if withEngine {
		opts = append(opts, WithEngine(findmodify.New(dev, reg)))
	}
	srv := NewServer("", dev, opts...)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testEnv{dev: dev, client: NewClient(conn), metrics: m}
}

func TestListRecords(t *testing.T) {
	env := startServer(t, false)
	records, err := env.client.ListRecords(context.Background(), "/ip/address")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "*1", records[0].ID())
	assert.Equal(t, false, records[0]["disabled"])
	assert.Equal(t, "uplink", records[1]["comment"])

	got := testutil.ToFloat64(env.metrics.requests.WithLabelValues(listRecordsMethod, codes.OK.String()))
	assert.Equal(t, 1.0, got)
}

func TestUpdateRecordRoundTrip(t *testing.T) {
	env := startServer(t, false)
	ctx := context.Background()

	err := env.client.UpdateRecord(ctx, "ip address", "*2", map[string]any{
		"comment":  "",
		"disabled": true,
		"!network": "",
	})
	require.NoError(t, err)

	rec := env.dev.Snapshot("ip address")[1]
	assert.False(t, rec.Has("comment"))
	assert.Equal(t, true, rec["disabled"])
}

func TestIntegersSurviveTransport(t *testing.T) {
	env := startServer(t, false)
	ctx := context.Background()
	require.NoError(t, env.client.UpdateRecord(ctx, "ip address", "*1", map[string]any{"priority": 10}))

	records, err := env.client.ListRecords(ctx, "ip address")
	require.NoError(t, err)
	assert.Equal(t, 10, records[0]["priority"])
}

func TestUpdateMissingRecord(t *testing.T) {
	env := startServer(t, false)
	err := env.client.UpdateRecord(context.Background(), "ip address", "*99", map[string]any{"comment": "x"})
	assert.True(t, errors.Is(err, session.ErrNoSuchRecord), "got %v", err)

	got := testutil.ToFloat64(env.metrics.requests.WithLabelValues(updateRecordMethod, codes.NotFound.String()))
	assert.Equal(t, 1.0, got)
}

func TestInvalidArguments(t *testing.T) {
	env := startServer(t, false)
	_, err := env.client.ListRecords(context.Background(), "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = env.client.UpdateRecord(context.Background(), "ip address", "", nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestFindModifyDisabled(t *testing.T) {
	env := startServer(t, false)
	_, err := env.client.FindModify(context.Background(), map[string]any{"path": "ip address"})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestFindModify(t *testing.T) {
	env := startServer(t, true)
	ctx := context.Background()
	doc := map[string]any{
		"path":   "/ip/address",
		"find":   map[string]any{"interface": "ether1"},
		"values": map[string]any{"comment": "wan", "disabled": false},
		"diff":   true,
	}

	res, err := env.client.FindModify(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchCount)
	assert.Equal(t, 1, res.ModifyCount)
	require.Len(t, res.Modifications, 1)
	assert.Equal(t, "*2", res.Modifications[0].ID)
	assert.Equal(t, map[string]any{"comment": "wan", "disabled": false}, res.Modifications[0].Changes)
	require.NotNil(t, res.Diff)
	assert.Equal(t, "uplink", res.Diff.Before[0]["comment"])
	assert.Equal(t, "wan", res.Diff.After[0]["comment"])
	assert.Equal(t, "wan", res.NewData[1]["comment"])

	res, err = env.client.FindModify(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ModifyCount)
}

func TestFindModifyErrors(t *testing.T) {
	env := startServer(t, true)
	ctx := context.Background()

	tests := []struct {
		name string
		doc  map[string]any
		msg  string
		kind any
	}{
		{"missing path", map[string]any{}, "task: find-and-modify: path is required", nil},
		{"schema", map[string]any{"path": "ip address", "values": map[string]any{"colour": "red"}},
			`ip address: field "colour": the field does not exist for this path`, new(*schema.SchemaError)},
		{"count", map[string]any{"path": "ip address", "require_matches_max": 1},
			"Found 2 entries, but expected at most 1", new(*findmodify.CountMismatchError)},
		{"no matches", map[string]any{"path": "ip address", "find": map[string]any{"interface": "ether9"}, "require_matches_min": 1},
			"Found no entries, but allow_no_matches=false", new(*findmodify.CountMismatchError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.FindModify(ctx, tt.doc)
			require.Error(t, err)
			assert.Equal(t, tt.msg, err.Error())
			if tt.kind != nil {
				assert.True(t, errors.As(err, tt.kind), "got %T", err)
			} else {
				assert.Equal(t, codes.InvalidArgument, status.Code(err))
			}
		})
	}

	_, err := env.client.FindModify(ctx, map[string]any{"path": "ip address", "require_matches_max": 1})
	var ce *findmodify.CountMismatchError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.Found)
	require.NotNil(t, ce.Max)
	assert.Equal(t, 1, *ce.Max)

	_, err = env.client.FindModify(ctx, map[string]any{"path": "ip address", "bogus": 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.NotContains(t, err.Error(), "rpc error")
}

func TestFindModifyApplyError(t *testing.T) {
	env := startServer(t, true)
	env.dev.FailOn("*1", errors.New("failure: already have such address"))

	_, err := env.client.FindModify(context.Background(), map[string]any{
		"path":   "ip address",
		"values": map[string]any{"interface": "ether5"},
	})
	require.Error(t, err)
	assert.Equal(t, "Error while modifying for .id=*1: failure: already have such address", err.Error())

	var ae *findmodify.ApplyError
	require.True(t, errors.As(err, &ae), "got %T", err)
	assert.Equal(t, "*1", ae.ID)
	assert.Equal(t, "failure: already have such address", ae.Err.Error())
}

func TestFindModifyRegexError(t *testing.T) {
	err := fromEngineStatus(engineStatus(&restrict.RegexCompileError{Pattern: "(", Err: errors.New("missing closing )")}))
	var re *restrict.RegexCompileError
	require.True(t, errors.As(err, &re), "got %T", err)
	assert.Equal(t, "(", re.Pattern)
	assert.Equal(t, `restrict: invalid regular expression "(": missing closing )`, err.Error())
}

func TestDecodeValue(t *testing.T) {
	in := map[string]any{
		"n":    float64(3),
		"f":    1.5,
		"s":    "x",
		"list": []any{float64(1), "a"},
		"m":    map[string]any{"k": float64(2)},
	}
	want := map[string]any{
		"n":    3,
		"f":    1.5,
		"s":    "x",
		"list": []any{1, "a"},
		"m":    map[string]any{"k": 2},
	}
	assert.Equal(t, want, decodeMap(in))
}
