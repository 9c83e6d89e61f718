// Package storage - msgpack serialization with a small versioned header.
package storage

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"
)

const (
	serializationMagic   = "\xffKGR"
	serializationVersion = byte(1)
)

// encodeValue msgpack-encodes a value behind a magic+version header so the
// on-disk format can evolve without a rewrite of existing records.
func encodeValue(value any) ([]byte, error) {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(serializationMagic)+1+len(payload))
	out = append(out, serializationMagic...)
	out = append(out, serializationVersion)
	out = append(out, payload...)
	return out, nil
}

func decodeValue(data []byte, value any) error {
	headerLen := len(serializationMagic) + 1
	if len(data) < headerLen || string(data[:len(serializationMagic)]) != serializationMagic {
		return fmt.Errorf("missing serialization header")
	}
	version := data[len(serializationMagic)]
	if version != serializationVersion {
		return fmt.Errorf("unsupported serialization version: %d", version)
	}
	return msgpack.Unmarshal(data[headerLen:], value)
}

func serializeNode(node *Node) ([]byte, error) {
	data, err := encodeValue(node)
	if err != nil {
		return nil, fmt.Errorf("encoding node: %w", err)
	}
	return data, nil
}

func deserializeNode(data []byte) (*Node, error) {
	var node Node
	if err := decodeValue(data, &node); err != nil {
		return nil, fmt.Errorf("decoding node: %w", err)
	}
	return &node, nil
}

func serializeEdge(edge *Edge) ([]byte, error) {
	data, err := encodeValue(edge)
	if err != nil {
		return nil, fmt.Errorf("encoding edge: %w", err)
	}
	return data, nil
}

func deserializeEdge(data []byte) (*Edge, error) {
	var edge Edge
	if err := decodeValue(data, &edge); err != nil {
		return nil, fmt.Errorf("decoding edge: %w", err)
	}
	return &edge, nil
}

func serializeTypeDef(def *schema.TypeDefinition) ([]byte, error) {
	data, err := encodeValue(def)
	if err != nil {
		return nil, fmt.Errorf("encoding type definition: %w", err)
	}
	return data, nil
}

func deserializeTypeDef(data []byte) (*schema.TypeDefinition, error) {
	var def schema.TypeDefinition
	if err := decodeValue(data, &def); err != nil {
		return nil, fmt.Errorf("decoding type definition: %w", err)
	}
	return &def, nil
}
