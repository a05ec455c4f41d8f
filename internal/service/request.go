package service

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/source_registry/internal/query"
	"github.com/atlekbai/source_registry/internal/source"
)

// queryRequest is the decoded body of Query and Explain:
//
//	{"entity": "...", "source": "...", "args": [...], "named": {...},
//	 "select": [...], "filters": {"col": "op.value"}, "order": "col.desc",
//	 "limit": 10, "offset": 0}
type queryRequest struct {
	Entity string
	Source string
	Call   source.Call
	Params query.ParamsInput
}

func decodeQueryRequest(msg *structpb.Struct) (*queryRequest, error) {
	fields := msg.GetFields()
	qr := &queryRequest{
		Entity: fields["entity"].GetStringValue(),
		Source: fields["source"].GetStringValue(),
	}
	if qr.Entity == "" || qr.Source == "" {
		return nil, fmt.Errorf("entity and source are required")
	}

	for _, v := range fields["args"].GetListValue().GetValues() {
		qr.Call.Args = append(qr.Call.Args, argValue(v))
	}
	if named := fields["named"].GetStructValue(); named != nil {
		qr.Call.Named = make(map[string]any, len(named.GetFields()))
		for k, v := range named.GetFields() {
			qr.Call.Named[k] = argValue(v)
		}
	}

	for _, v := range fields["select"].GetListValue().GetValues() {
		qr.Params.Select = append(qr.Params.Select, v.GetStringValue())
	}
	if filters := fields["filters"].GetStructValue(); filters != nil {
		qr.Params.Filters = make(map[string]string, len(filters.GetFields()))
		for k, v := range filters.GetFields() {
			s, ok := v.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return nil, fmt.Errorf("filter %q must be a string like op.value", k)
			}
			qr.Params.Filters[k] = s.StringValue
		}
	}
	qr.Params.Order = fields["order"].GetStringValue()

	var err error
	if qr.Params.Limit, err = intField(fields, "limit"); err != nil {
		return nil, err
	}
	if qr.Params.Offset, err = intField(fields, "offset"); err != nil {
		return nil, err
	}
	return qr, nil
}

func intField(fields map[string]*structpb.Value, name string) (int, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return int(n.NumberValue), nil
}

// argValue converts a JSON value into a bind value. Whole numbers become
// int64 so that integer columns compare without casts.
func argValue(v *structpb.Value) any {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if k.NumberValue == math.Trunc(k.NumberValue) && math.Abs(k.NumberValue) < 1<<53 {
			return int64(k.NumberValue)
		}
		return k.NumberValue
	case *structpb.Value_NullValue:
		return nil
	default:
		return v.AsInterface()
	}
}
