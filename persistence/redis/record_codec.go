package redis

import (
	"encoding/json"
)

// recordCodec converts a record to the JSON value stored under its key and back.
type recordCodec[T any] struct{}

func (recordCodec[T]) encode(record T) ([]byte, error) {
	return json.Marshal(record)
}

func (recordCodec[T]) decode(data []byte) (*T, error) {
	var record T
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
