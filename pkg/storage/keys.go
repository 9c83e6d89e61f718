package storage

import "github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"

// Key encoding
// ============================================================================
//
// All keys start with a single prefix byte:
//
//	n + <node-id>                      node record
//	e + <edge-id>                      edge record
//	p + <node-id> 0x00 <edge-id>       endpoint index (written for start and end)
//	t + <kind> 0x00 <label>            persisted type definition

const (
	prefixNode     = byte('n')
	prefixEdge     = byte('e')
	prefixEndpoint = byte('p')
	prefixTypeDef  = byte('t')
)

func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, []byte(id)...)
}

func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, []byte(id)...)
}

// endpointKey indexes an edge under one of its endpoint nodes.
func endpointKey(nodeID NodeID, edgeID EdgeID) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1+len(edgeID))
	key = append(key, prefixEndpoint)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	key = append(key, []byte(edgeID)...)
	return key
}

// endpointPrefix is the scan prefix for all edges incident to a node.
func endpointPrefix(nodeID NodeID) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1)
	key = append(key, prefixEndpoint)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	return key
}

// edgeIDFromEndpointKey extracts the edge id suffix from an endpoint index key.
func edgeIDFromEndpointKey(key []byte, nodeID NodeID) EdgeID {
	offset := 1 + len(nodeID) + 1
	if len(key) <= offset {
		return ""
	}
	return EdgeID(key[offset:])
}

func typeDefKey(kind schema.EntityKind, label string) []byte {
	key := make([]byte, 0, 1+len(kind)+1+len(label))
	key = append(key, prefixTypeDef)
	key = append(key, []byte(kind)...)
	key = append(key, 0x00)
	key = append(key, []byte(label)...)
	return key
}
