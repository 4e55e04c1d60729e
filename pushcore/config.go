package pushcore

import "time"

// SessionServerConfig is the external configuration collaborator named in
// spec.md §6. The core re-reads every value on each reference rather than
// caching, so a live-reloading implementation (out of scope here) can
// change behavior without restarting the core.
type SessionServerConfig interface {
	PushTaskExecutorPoolSize() int
	PushTaskExecutorQueueSize() int
	PushDataTaskDebouncingMillis() int64
	ClientNodeExchangeTimeOut() time.Duration
	PushTaskRetryTimes() uint32
	PushDataTaskRetryFirstDelayMillis() int64
	PushDataTaskRetryIncrementDelayMillis() int64
	IsStopPushSwitch() bool
}

// StaticConfig is a fixed-value SessionServerConfig, analogous to the
// in-memory mock config the teacher's tests construct in place of the
// real (out-of-scope) config loader.
type StaticConfig struct {
	ExecutorPoolSize             int
	ExecutorQueueSize            int
	DebouncingMillis             int64
	ExchangeTimeOut              time.Duration
	RetryTimes                   uint32
	RetryFirstDelayMillis        int64
	RetryIncrementDelayMillis    int64
	StopPush                     bool
}

var _ SessionServerConfig = (*StaticConfig)(nil)

// DefaultStaticConfig mirrors the concrete scenario constants from
// spec.md §8 (debounce=100ms, retryFirst=50ms, retryInc=50ms, retryTimes=2,
// exchangeTimeOut=500ms).
func DefaultStaticConfig() *StaticConfig {
	return &StaticConfig{
		ExecutorPoolSize:          4,
		ExecutorQueueSize:         1000,
		DebouncingMillis:          100,
		ExchangeTimeOut:           500 * time.Millisecond,
		RetryTimes:                2,
		RetryFirstDelayMillis:     50,
		RetryIncrementDelayMillis: 50,
		StopPush:                  false,
	}
}

func (c *StaticConfig) PushTaskExecutorPoolSize() int { return c.ExecutorPoolSize }
func (c *StaticConfig) PushTaskExecutorQueueSize() int { return c.ExecutorQueueSize }
func (c *StaticConfig) PushDataTaskDebouncingMillis() int64 { return c.DebouncingMillis }
func (c *StaticConfig) ClientNodeExchangeTimeOut() time.Duration { return c.ExchangeTimeOut }
func (c *StaticConfig) PushTaskRetryTimes() uint32 { return c.RetryTimes }
func (c *StaticConfig) PushDataTaskRetryFirstDelayMillis() int64 { return c.RetryFirstDelayMillis }
func (c *StaticConfig) PushDataTaskRetryIncrementDelayMillis() int64 { return c.RetryIncrementDelayMillis }
func (c *StaticConfig) IsStopPushSwitch() bool { return c.StopPush }
