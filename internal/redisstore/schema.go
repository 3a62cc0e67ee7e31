package redisstore

import (
	"fmt"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

// KnowledgeKey returns the hash key holding a scope's knowledge record.
// Pattern: sectormap:{namespace}:knowledge:{kind}:{id}
func KnowledgeKey(namespace string, scope knowledge.Scope) string {
	return fmt.Sprintf("sectormap:%s:knowledge:%s", namespace, scope.Key())
}

// MapEventsChannel returns the Pub/Sub channel carrying map updates.
// Pattern: sectormap:{namespace}:map_events
func MapEventsChannel(namespace string) string {
	return fmt.Sprintf("sectormap:%s:map_events", namespace)
}

const (
	fieldVersion  = "version"
	fieldEncoding = "encoding"
	fieldBlob     = "blob"
	fieldUpdated  = "updated_at"
)
