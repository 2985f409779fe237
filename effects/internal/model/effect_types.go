package effectmodel

import "errors"

type EffectEnum string

const (
	EffectLog         EffectEnum = "effect_ive_store_effect_enum_log"
	EffectConcurrency EffectEnum = "effect_ive_store_effect_enum_concurrency"
	EffectBinding     EffectEnum = "effect_ive_store_effect_enum_binding"
)

// ErrNoEffectHandler is returned (or raised) when no handler is registered in the context for an enum.
var ErrNoEffectHandler = errors.New("no effect handler registered for this effect")

type EffectScopeConfig struct {
	BufferSize int // default: 1
	NumWorkers int // default: 1
}

func NewEffectScopeConfig(bufferSize int, numWorkers int) EffectScopeConfig {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return EffectScopeConfig{
		BufferSize: bufferSize,
		NumWorkers: numWorkers,
	}
}

type Partitionable interface {
	PartitionKey() string
}
