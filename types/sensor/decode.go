package sensor

import (
	"fmt"

	"github.com/tidwall/gjson"
)

var ErrDecodeRecord = fmt.Errorf("could not decode as accel or gps record")

// DecodeRecord decodes one NDJSON trace line.
// Phone loggers are sloppy about schema, so decoding goes through gjson and
// tolerates missing fields rather than failing the whole trace:
// a fix without accuracy gets DefaultFixAccuracy, a fix with a negative or
// missing speed becomes position-only (Speed == nil).
// Two line shapes are accepted:
//
//	{"type":"accel","ax":...,"ay":...,"az":...,"t":...,"linear":true}
//	{"type":"gps","lat":...,"lon":...,"speed":...,"accuracy":...,"t":...}
//
// as well as the wrapped form {"accel":{...}} / {"gps":{...}}.
func DecodeRecord(data []byte) (Record, error) {
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return Record{}, ErrDecodeRecord
	}

	body := parsed
	kind := parsed.Get("type").String()
	if kind == "" {
		if wrapped := parsed.Get("accel"); wrapped.IsObject() {
			kind, body = "accel", wrapped
		} else if wrapped := parsed.Get("gps"); wrapped.IsObject() {
			kind, body = "gps", wrapped
		}
	}

	switch kind {
	case "accel":
		return decodeAccel(body)
	case "gps":
		return decodeGps(body)
	}
	return Record{}, ErrDecodeRecord
}

func decodeAccel(body gjson.Result) (Record, error) {
	t := body.Get("t")
	if !t.Exists() {
		return Record{}, fmt.Errorf("accel record missing 't'")
	}
	s := &AccelSample{
		X:          body.Get("ax").Float(),
		Y:          body.Get("ay").Float(),
		Z:          body.Get("az").Float(),
		UnixMillis: t.Int(),
		// Absent flag means the logger recorded the raw including-gravity
		// stream; hardware linear acceleration is the newer, opt-in path.
		Linear: body.Get("linear").Bool(),
	}
	return Record{Accel: s}, nil
}

func decodeGps(body gjson.Result) (Record, error) {
	t := body.Get("t")
	lat, lon := body.Get("lat"), body.Get("lon")
	if !t.Exists() || !lat.Exists() || !lon.Exists() {
		return Record{}, fmt.Errorf("gps record missing 't'/'lat'/'lon'")
	}
	f := &GpsFix{
		Lat:        lat.Float(),
		Lon:        lon.Float(),
		Accuracy:   DefaultFixAccuracy,
		UnixMillis: t.Int(),
	}
	if acc := body.Get("accuracy"); acc.Exists() && acc.Float() > 0 {
		f.Accuracy = acc.Float()
	}
	if sp := body.Get("speed"); sp.Type == gjson.Number {
		v := sp.Float()
		if v >= 0 {
			f.Speed = &v
		}
	}
	return Record{Gps: f}, nil
}
