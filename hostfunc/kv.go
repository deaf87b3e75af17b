package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	DefaultKVMaxKeySize   = 256
	DefaultKVMaxValueSize = 64 * 1024
	DefaultKVMaxEntries   = 1024
)

// KVConfig bounds the in-memory key-value store exposed to sandboxed code.
type KVConfig struct {
	MaxKeySize   int
	MaxValueSize int
	MaxEntries   int
}

func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize:   DefaultKVMaxKeySize,
		MaxValueSize: DefaultKVMaxValueSize,
		MaxEntries:   DefaultKVMaxEntries,
	}
}

// KV is a string-to-string store shared by all snippets of one run or
// session. It is not persisted anywhere.
type KV struct {
	cfg  KVConfig
	data map[string]string
	mu   sync.RWMutex
}

func NewKV(cfg KVConfig) *KV {
	if cfg.MaxKeySize <= 0 {
		cfg.MaxKeySize = DefaultKVMaxKeySize
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = DefaultKVMaxValueSize
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultKVMaxEntries
	}
	return &KV{cfg: cfg, data: make(map[string]string)}
}

// Get returns the stored value, the "default" argument if the key is
// missing, or nil.
func (s *KV) Get(ctx context.Context, args map[string]any) (any, error) {
	key, ok := args["key"].(string)
	if !ok {
		return nil, errors.New("key required")
	}

	s.mu.RLock()
	val, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		if def, ok := args["default"]; ok {
			return def, nil
		}
		return nil, nil
	}
	return val, nil
}

func (s *KV) Set(ctx context.Context, args map[string]any) (any, error) {
	key, ok := args["key"].(string)
	if !ok {
		return nil, errors.New("key required")
	}
	val, ok := args["value"].(string)
	if !ok {
		return nil, errors.New("value required")
	}

	if len(key) > s.cfg.MaxKeySize {
		return nil, fmt.Errorf("key exceeds max size %d", s.cfg.MaxKeySize)
	}
	if len(val) > s.cfg.MaxValueSize {
		return nil, fmt.Errorf("value exceeds max size %d", s.cfg.MaxValueSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && len(s.data) >= s.cfg.MaxEntries {
		return nil, fmt.Errorf("store full (max %d entries)", s.cfg.MaxEntries)
	}
	s.data[key] = val

	return "ok", nil
}

func (s *KV) Delete(ctx context.Context, args map[string]any) (any, error) {
	key, ok := args["key"].(string)
	if !ok {
		return nil, errors.New("key required")
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	return "ok", nil
}

// Keys returns all keys in sorted order.
func (s *KV) Keys(ctx context.Context, args map[string]any) (any, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}
