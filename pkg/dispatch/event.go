package dispatch

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// ErrNormalization is returned when an event cannot be turned into user text.
var ErrNormalization = errors.New("transcript normalization failed")

// Event is a transcript event classified by shape.
type Event interface {
	// Text extracts the raw, untrimmed user text.
	Text() (string, error)
}

// TextCarrier is implemented by typed provider events that know their own transcript.
type TextCarrier interface {
	TranscriptText() string
}

// KeyedEvent is a map payload carrying the text under "text" or, failing that, "transcript".
type KeyedEvent struct {
	Fields map[string]interface{}
}

func (e KeyedEvent) Text() (string, error) {
	for _, key := range []string{"text", "transcript"} {
		v, ok := e.Fields[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return "", errors.Wrapf(ErrNormalization, "field %q is %T, not a string", key, v)
		}
		if s != "" {
			return s, nil
		}
	}
	return "", nil
}

// SequenceEvent is a positional payload whose first element is the text.
type SequenceEvent struct {
	Items []interface{}
}

func (e SequenceEvent) Text() (string, error) {
	if len(e.Items) == 0 {
		return "", errors.Wrap(ErrNormalization, "empty sequence")
	}
	switch v := e.Items[0].(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return "", errors.Wrapf(ErrNormalization, "first element is %T, not a string", v)
	}
}

// CarrierEvent wraps a typed event implementing TextCarrier.
type CarrierEvent struct {
	Carrier TextCarrier
}

func (e CarrierEvent) Text() (string, error) {
	return e.Carrier.TranscriptText(), nil
}

// OpaqueEvent is any other value; its text is its default string form.
type OpaqueEvent struct {
	Value interface{}
}

func (e OpaqueEvent) Text() (string, error) {
	return fmt.Sprint(e.Value), nil
}

// Classify picks the variant matching the shape of raw. An empty sequence has no first
// element and is treated as opaque.
func Classify(raw interface{}) Event {
	switch v := raw.(type) {
	case Event:
		return v
	case TextCarrier:
		return CarrierEvent{Carrier: v}
	case map[string]interface{}:
		return KeyedEvent{Fields: v}
	case map[string]string:
		fields := make(map[string]interface{}, len(v))
		for k, s := range v {
			fields[k] = s
		}
		return KeyedEvent{Fields: fields}
	case []interface{}:
		if len(v) > 0 {
			return SequenceEvent{Items: v}
		}
	case []string:
		if len(v) > 0 {
			items := make([]interface{}, len(v))
			for i, s := range v {
				items[i] = s
			}
			return SequenceEvent{Items: items}
		}
	case nil:
		return OpaqueEvent{Value: nil}
	default:
		rv := reflect.ValueOf(raw)
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Len() > 0 {
			items := make([]interface{}, rv.Len())
			for i := range items {
				items[i] = rv.Index(i).Interface()
			}
			return SequenceEvent{Items: items}
		}
	}
	return OpaqueEvent{Value: raw}
}

// Normalize extracts the trimmed user text from raw. An empty result means the event
// should be dropped.
func Normalize(raw interface{}) (string, error) {
	text, err := Classify(raw).Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
