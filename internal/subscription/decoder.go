package subscription

import "encoding/json"

// Decoder turns a raw payload into T.
type Decoder[T any] func(payload []byte) (T, error)

// JSONDecoder decodes payloads with encoding/json.
func JSONDecoder[T any]() Decoder[T] {
	return func(payload []byte) (T, error) {
		var v T
		err := json.Unmarshal(payload, &v)
		return v, err
	}
}

// BytesDecoder passes payloads through unchanged.
func BytesDecoder() Decoder[[]byte] {
	return func(payload []byte) ([]byte, error) {
		return payload, nil
	}
}

// StringDecoder converts payloads to strings.
func StringDecoder() Decoder[string] {
	return func(payload []byte) (string, error) {
		return string(payload), nil
	}
}
