package testutil

import (
	"context"
	"errors"
	"time"

	"github.com/wombat2006/wallbounce/internal/config"
	"github.com/wombat2006/wallbounce/internal/llm"
	"github.com/wombat2006/wallbounce/internal/store"
)

// MockInvoker is a mock implementation of llm.Invoker for testing
type MockInvoker struct {
	InvokeFunc       func(ctx context.Context, model string, prompt string, opts llm.Options) (*llm.Result, error)
	DefaultModelFunc func() string
}

var _ llm.Invoker = (*MockInvoker)(nil)

func (m *MockInvoker) Invoke(ctx context.Context, model string, prompt string, opts llm.Options) (*llm.Result, error) {
	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, model, prompt, opts)
	}
	return nil, errors.New("not implemented")
}

func (m *MockInvoker) DefaultModel() string {
	if m.DefaultModelFunc != nil {
		return m.DefaultModelFunc()
	}
	return "mock-model"
}

// MockStore is a mock implementation of store.VersionedStore for testing.
// Unset funcs delegate to the wrapped store when one is provided, so a test
// can intercept a single operation and leave the rest on a real MemoryStore.
type MockStore struct {
	Wrapped store.VersionedStore

	GetFunc     func(ctx context.Context, key string) (*store.Record, error)
	PutFunc     func(ctx context.Context, key string, value []byte, opts store.PutOptions) (int64, error)
	DeleteFunc  func(ctx context.Context, key string) error
	RestoreFunc func(ctx context.Context, key string, rec store.Record) error
	CloseFunc   func() error
}

var _ store.VersionedStore = (*MockStore)(nil)

func (m *MockStore) Get(ctx context.Context, key string) (*store.Record, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	if m.Wrapped != nil {
		return m.Wrapped.Get(ctx, key)
	}
	return nil, errors.New("not implemented")
}

func (m *MockStore) Put(ctx context.Context, key string, value []byte, opts store.PutOptions) (int64, error) {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, value, opts)
	}
	if m.Wrapped != nil {
		return m.Wrapped.Put(ctx, key, value, opts)
	}
	return 0, errors.New("not implemented")
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	if m.Wrapped != nil {
		return m.Wrapped.Delete(ctx, key)
	}
	return errors.New("not implemented")
}

func (m *MockStore) Restore(ctx context.Context, key string, rec store.Record) error {
	if m.RestoreFunc != nil {
		return m.RestoreFunc(ctx, key, rec)
	}
	if m.Wrapped != nil {
		return m.Wrapped.Restore(ctx, key, rec)
	}
	return errors.New("not implemented")
}

func (m *MockStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	if m.Wrapped != nil {
		return m.Wrapped.Close()
	}
	return nil
}

// NewMockSessionConfig creates session manager settings tuned for fast tests
func NewMockSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		CacheSize:    16,
		CacheTTL:     time.Minute,
		MaxHistory:   1000,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		TTL:          time.Hour,
		PromptWindow: 5,
	}
}

// NewMockEngineConfig creates orchestration settings tuned for fast tests
func NewMockEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxPasses:    3,
		MinPasses:    2,
		MinSuccesses: 2,
		PhaseTimeout: time.Second,
	}
}
