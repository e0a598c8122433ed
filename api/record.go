package api

import (
	"fmt"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var recordJSON = []byte(`{"type":"record"}`)

// Record is one item produced by a unit of work, wrapped with the channel
// it came from and the identity of the unit that produced it. Consumers of
// a multiplexed sink see records from many units interleaved in arrival
// order; Seq is the sink-wide arrival sequence number.
type Record struct {
	TaskID    uuid.UUID       `json:"task_id"`
	Channel   Channel         `json:"channel"`
	Value     any             `json:"value,omitempty"`
	Err       error           `json:"-"`
	Seq       uint64          `json:"seq"`
	Timestamp strfmt.DateTime `json:"timestamp"`
	Meta      gjson.Result    `json:"meta,omitempty"`
}

// IsError reports whether the record carries a failure converted into a
// non-terminating error record.
func (r Record) IsError() bool {
	return r.Err != nil || r.Channel == ChannelError
}

func (r Record) String() string {
	if r.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", r.TaskID, r.Channel, r.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", r.TaskID, r.Channel, r.Value)
}

// MarshalJSON renders the record with a type marker so that transports
// carrying mixed payloads can dispatch without a wrapper struct.
func (r Record) MarshalJSON() ([]byte, error) {
	result := recordJSON
	var err error

	result, err = sjson.SetBytes(result, "task_id", r.TaskID.String())
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "channel", r.Channel.String())
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "seq", r.Seq)
	if err != nil {
		return nil, err
	}
	if r.Err != nil {
		result, err = sjson.SetBytes(result, "error", r.Err.Error())
		if err != nil {
			return nil, err
		}
	}
	if r.Value != nil {
		valueBytes, merr := json.Marshal(r.Value)
		if merr != nil {
			return nil, merr
		}
		result, err = sjson.SetRawBytes(result, "value", valueBytes)
		if err != nil {
			return nil, err
		}
	}
	if !r.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", r.Timestamp.String())
		if err != nil {
			return nil, err
		}
	}
	if r.Meta.Exists() {
		result, err = sjson.SetRawBytes(result, "meta", []byte(r.Meta.Raw))
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// UnmarshalJSON restores a record serialized with MarshalJSON. The error
// field comes back as a recordError value.
func (r *Record) UnmarshalJSON(data []byte) error {
	parsed := gjson.ParseBytes(data)
	if tn := parsed.Get("type"); tn.Str != "record" {
		return fmt.Errorf("expected record payload, got %q", tn.Str)
	}

	if tid := parsed.Get("task_id"); tid.Exists() {
		id, err := uuid.Parse(tid.Str)
		if err != nil {
			return fmt.Errorf("invalid task_id: %w", err)
		}
		r.TaskID = id
	}
	if ch := parsed.Get("channel"); ch.Exists() {
		channel, ok := ParseChannel(ch.Str)
		if !ok {
			return fmt.Errorf("unknown channel %q", ch.Str)
		}
		r.Channel = channel
	}
	r.Seq = parsed.Get("seq").Uint()
	if v := parsed.Get("value"); v.Exists() {
		r.Value = v.Value()
	}
	if e := parsed.Get("error"); e.Exists() {
		r.Err = recordError(e.Str)
	}
	if ts := parsed.Get("timestamp"); ts.Exists() {
		parsedTime, err := strfmt.ParseDateTime(ts.Str)
		if err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
		r.Timestamp = parsedTime
	}
	if meta := parsed.Get("meta"); meta.Exists() {
		r.Meta = meta
	}
	return nil
}

// recordError is the deserialized form of a failure carried by a record.
// The original error type does not survive the wire, only its message.
type recordError string

func (e recordError) Error() string { return string(e) }
