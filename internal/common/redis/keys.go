package redis

import (
	"fmt"
	"strings"
)

const (
	defaultKeyPrefix = "httpbench"
	runKeySegment    = "run"
	runsIndexSegment = "runs"
)

// KeyGenerator builds the Redis keys used for run history
type KeyGenerator struct {
	prefix string
}

// NewKeyGenerator creates a KeyGenerator; an empty prefix means "httpbench"
func NewKeyGenerator(prefix string) *KeyGenerator {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &KeyGenerator{prefix: prefix}
}

// RunKey is the key holding one run record, e.g. httpbench:run:<id>
func (kg *KeyGenerator) RunKey(runID string) string {
	return fmt.Sprintf("%s:%s:%s", kg.prefix, runKeySegment, runID)
}

// RunsIndexKey is the list of run ids, newest first
func (kg *KeyGenerator) RunsIndexKey() string {
	return fmt.Sprintf("%s:%s", kg.prefix, runsIndexSegment)
}
