package hostfunc

import (
	"context"
	"strings"
	"sync"
	"testing"
)

func TestKVSetGet(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	_, err := kv.Set(ctx, map[string]any{"key": "foo", "value": "bar"})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := kv.Get(ctx, map[string]any{"key": "foo"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "bar" {
		t.Errorf("expected bar, got %v", val)
	}
}

func TestKVGetDefault(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	val, err := kv.Get(ctx, map[string]any{"key": "missing", "default": "fallback"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "fallback" {
		t.Errorf("expected fallback, got %v", val)
	}
}

func TestKVGetMissing(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	val, err := kv.Get(ctx, map[string]any{"key": "missing"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil, got %v", val)
	}
}

func TestKVDelete(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	kv.Set(ctx, map[string]any{"key": "foo", "value": "bar"})
	kv.Delete(ctx, map[string]any{"key": "foo"})

	val, _ := kv.Get(ctx, map[string]any{"key": "foo"})
	if val != nil {
		t.Errorf("expected nil after delete, got %v", val)
	}
}

func TestKVKeysSorted(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	for _, k := range []string{"c", "a", "b"} {
		kv.Set(ctx, map[string]any{"key": k, "value": "1"})
	}

	result, err := kv.Keys(ctx, nil)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	keys := result.([]string)
	if strings.Join(keys, ",") != "a,b,c" {
		t.Errorf("expected sorted keys, got %v", keys)
	}
}

func TestKVKeyRequired(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	if _, err := kv.Get(ctx, map[string]any{}); err == nil {
		t.Error("Get without key should fail")
	}
	if _, err := kv.Set(ctx, map[string]any{"value": "v"}); err == nil {
		t.Error("Set without key should fail")
	}
	if _, err := kv.Delete(ctx, map[string]any{}); err == nil {
		t.Error("Delete without key should fail")
	}
}

func TestKVKeySizeLimit(t *testing.T) {
	kv := NewKV(KVConfig{MaxKeySize: 4})
	ctx := context.Background()

	_, err := kv.Set(ctx, map[string]any{"key": "toolong", "value": "v"})
	if err == nil {
		t.Error("expected oversized key to be rejected")
	}
}

func TestKVValueSizeLimit(t *testing.T) {
	kv := NewKV(KVConfig{MaxValueSize: 4})
	ctx := context.Background()

	_, err := kv.Set(ctx, map[string]any{"key": "k", "value": "toolong"})
	if err == nil {
		t.Error("expected oversized value to be rejected")
	}
}

func TestKVEntryLimit(t *testing.T) {
	kv := NewKV(KVConfig{MaxEntries: 2})
	ctx := context.Background()

	kv.Set(ctx, map[string]any{"key": "a", "value": "1"})
	kv.Set(ctx, map[string]any{"key": "b", "value": "2"})

	if _, err := kv.Set(ctx, map[string]any{"key": "c", "value": "3"}); err == nil {
		t.Error("expected third entry to be rejected")
	}

	// Overwriting an existing key must still work at the limit.
	if _, err := kv.Set(ctx, map[string]any{"key": "a", "value": "updated"}); err != nil {
		t.Errorf("overwrite at limit failed: %v", err)
	}
}

func TestKVConcurrentAccess(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kv.Set(ctx, map[string]any{"key": "shared", "value": "v"})
			kv.Get(ctx, map[string]any{"key": "shared"})
		}()
	}
	wg.Wait()
}
