package mqlast

import (
	"fmt"
	"time"

	"github.com/go-faster/jx"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Format returns compact relaxed extended JSON of a rendered value.
//
// Supported values are produced by Render methods: documents, arrays,
// scalars and stages.
func Format(v any) string {
	e := &jx.Encoder{}
	encodeValue(e, v)
	return e.String()
}

// FormatPipeline returns JSON array of stages.
func FormatPipeline(stages []bson.D) string {
	e := &jx.Encoder{}
	e.ArrStart()
	for _, s := range stages {
		encodeValue(e, s)
	}
	e.ArrEnd()
	return e.String()
}

func encodeValue(e *jx.Encoder, v any) {
	switch v := v.(type) {
	case nil:
		e.Null()
	case bson.D:
		if len(v) == 0 {
			e.ObjEmpty()
			return
		}
		e.ObjStart()
		for _, f := range v {
			e.FieldStart(f.Key)
			encodeValue(e, f.Value)
		}
		e.ObjEnd()
	case bson.A:
		encodeArray(e, v)
	case []any:
		encodeArray(e, v)
	case []bson.D:
		e.ArrStart()
		for _, d := range v {
			encodeValue(e, d)
		}
		e.ArrEnd()
	case Stage:
		encodeValue(e, v.Render())
	case Filter:
		encodeValue(e, v.Render())
	case Expr:
		encodeValue(e, v.Render())
	case string:
		e.Str(v)
	case bool:
		e.Bool(v)
	case int:
		e.Int64(int64(v))
	case int32:
		e.Int64(int64(v))
	case int64:
		e.Int64(v)
	case float64:
		e.Float64(v)
	case []byte:
		e.ObjStart()
		e.FieldStart("$binary")
		e.Base64(v)
		e.ObjEnd()
	case time.Time:
		e.ObjStart()
		e.FieldStart("$date")
		e.Str(v.UTC().Format(time.RFC3339Nano))
		e.ObjEnd()
	case primitive.ObjectID:
		e.ObjStart()
		e.FieldStart("$oid")
		e.Str(v.Hex())
		e.ObjEnd()
	default:
		e.Str(fmt.Sprintf("%v", v))
	}
}

func encodeArray(e *jx.Encoder, v []any) {
	e.ArrStart()
	for _, elem := range v {
		encodeValue(e, elem)
	}
	e.ArrEnd()
}
