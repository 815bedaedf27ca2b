package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/findmodify"
	"github.com/psaab/rosctl/pkg/restrict"
	"github.com/psaab/rosctl/pkg/schema"
	"github.com/psaab/rosctl/pkg/task"
)

// FindModify implements DeviceSessionServer. The request is a
// find-and-modify task document; the engine runs next to the device.
func (s *Server) FindModify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.engine == nil {
		return nil, status.Error(codes.Unimplemented, "find-and-modify is not enabled on this server")
	}
	t, err := task.DecodeFindModify(decodeMap(req.AsMap()))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.engine.Run(ctx, t.Options())
	if err != nil {
		slog.Warn("remote find-and-modify failed", "path", t.Path, "err", err)
		return nil, engineStatus(err)
	}
	out, err := structpb.NewStruct(encodeResult(res))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

// Error kinds carried in the status details of a failed FindModify.
const (
	kindSchema = "schema"
	kindRegex  = "regex"
	kindCount  = "count_mismatch"
	kindApply  = "apply"
)

// engineStatus maps engine failures onto gRPC codes. Messages are kept
// verbatim and the fields needed to rebuild the typed error travel as a
// google.protobuf.Struct detail.
func engineStatus(err error) error {
	var (
		schemaErr *schema.SchemaError
		regexErr  *restrict.RegexCompileError
		countErr  *findmodify.CountMismatchError
		applyErr  *findmodify.ApplyError
	)
	switch {
	case errors.As(err, &schemaErr):
		return withDetail(codes.InvalidArgument, err, map[string]any{
			"kind": kindSchema, "path": schemaErr.Path, "field": schemaErr.Field, "msg": schemaErr.Msg,
		})
	case errors.As(err, &regexErr):
		return withDetail(codes.InvalidArgument, err, map[string]any{
			"kind": kindRegex, "pattern": regexErr.Pattern, "cause": regexErr.Err.Error(),
		})
	case errors.As(err, &countErr):
		detail := map[string]any{"kind": kindCount, "found": countErr.Found, "min": countErr.Min}
		if countErr.Max != nil {
			detail["max"] = *countErr.Max
		}
		return withDetail(codes.FailedPrecondition, err, detail)
	case errors.As(err, &applyErr):
		return withDetail(codes.Aborted, err, map[string]any{
			"kind": kindApply, "id": applyErr.ID, "cause": applyErr.Err.Error(),
		})
	default:
		return toStatus(err)
	}
}

func withDetail(code codes.Code, err error, detail map[string]any) error {
	st := status.New(code, err.Error())
	d, derr := structpb.NewStruct(detail)
	if derr != nil {
		return st.Err()
	}
	if withDetails, derr := st.WithDetails(d); derr == nil {
		st = withDetails
	}
	return st.Err()
}

// remoteError is a server-side failure whose message is passed through
// unchanged.
type remoteError struct {
	code codes.Code
	msg  string
}

func (e *remoteError) Error() string { return e.msg }

// GRPCStatus lets status.FromError recover the original code.
func (e *remoteError) GRPCStatus() *status.Status { return status.New(e.code, e.msg) }

// fromEngineStatus rebuilds the typed engine error of a failed FindModify.
func fromEngineStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.Aborted:
	default:
		return fromStatus(err)
	}
	for _, d := range st.Details() {
		s, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		if typed := engineError(decodeMap(s.AsMap())); typed != nil {
			return typed
		}
	}
	return &remoteError{code: st.Code(), msg: st.Message()}
}

func engineError(d map[string]any) error {
	str := func(k string) string { s, _ := d[k].(string); return s }
	num := func(k string) int { n, _ := d[k].(int); return n }
	switch str("kind") {
	case kindSchema:
		return &schema.SchemaError{Path: str("path"), Field: str("field"), Msg: str("msg")}
	case kindRegex:
		return &restrict.RegexCompileError{Pattern: str("pattern"), Err: errors.New(str("cause"))}
	case kindCount:
		e := &findmodify.CountMismatchError{Found: num("found"), Min: num("min")}
		if _, ok := d["max"]; ok {
			maximum := num("max")
			e.Max = &maximum
		}
		return e
	case kindApply:
		return &findmodify.ApplyError{ID: str("id"), Err: errors.New(str("cause"))}
	}
	return nil
}

func recordList(records []entry.Record) []any {
	out := make([]any, len(records))
	for i, rec := range records {
		out[i] = map[string]any(rec)
	}
	return out
}

func encodeResult(res *findmodify.Result) map[string]any {
	mods := make([]any, len(res.Modifications))
	for i, m := range res.Modifications {
		mods[i] = map[string]any{"id": m.ID, "changes": m.Changes}
	}
	out := map[string]any{
		"old_data":      recordList(res.OldData),
		"new_data":      recordList(res.NewData),
		"match_count":   res.MatchCount,
		"modify_count":  res.ModifyCount,
		"changed":       res.Changed(),
		"modifications": mods,
	}
	if res.Diff != nil {
		out["diff"] = map[string]any{
			"before": recordList(res.Diff.Before),
			"after":  recordList(res.Diff.After),
		}
	}
	return out
}

func decodeRecords(v *structpb.Value) []entry.Record {
	values := v.GetListValue().GetValues()
	out := make([]entry.Record, 0, len(values))
	for _, rv := range values {
		out = append(out, decodeRecord(rv.GetStructValue()))
	}
	return out
}

func decodeResult(s *structpb.Struct) *findmodify.Result {
	f := s.GetFields()
	res := &findmodify.Result{
		OldData:     decodeRecords(f["old_data"]),
		NewData:     decodeRecords(f["new_data"]),
		MatchCount:  int(f["match_count"].GetNumberValue()),
		ModifyCount: int(f["modify_count"].GetNumberValue()),
	}
	for _, mv := range f["modifications"].GetListValue().GetValues() {
		mf := mv.GetStructValue().GetFields()
		res.Modifications = append(res.Modifications, findmodify.Modification{
			ID:      mf["id"].GetStringValue(),
			Changes: decodeMap(mf["changes"].GetStructValue().AsMap()),
		})
	}
	if d := f["diff"].GetStructValue(); d != nil {
		res.Diff = &findmodify.Diff{
			Before: decodeRecords(d.GetFields()["before"]),
			After:  decodeRecords(d.GetFields()["after"]),
		}
	}
	return res
}

// FindModify runs a find-and-modify task document on the server.
func (c *Client) FindModify(ctx context.Context, doc map[string]any) (*findmodify.Result, error) {
	req, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, findModifyMethod, req, resp); err != nil {
		return nil, fromEngineStatus(err)
	}
	return decodeResult(resp), nil
}
