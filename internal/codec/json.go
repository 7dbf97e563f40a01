package codec

import "encoding/json"

// JSON is the default Codec, round-tripping V through encoding/json.
type JSON[V any] struct{}

// NewJSON returns a JSON codec for V.
func NewJSON[V any]() JSON[V] { return JSON[V]{} }

func (JSON[V]) Encode(v V) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
