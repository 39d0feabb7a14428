package cache

import "time"

// ResilienceOptions controls fail-safe staleness and refresh timeouts.
type ResilienceOptions struct {
	FailSafeMaxDuration    time.Duration
	SoftTimeout            time.Duration // 0 = disabled
	HardTimeout            time.Duration // 0 = disabled
	EnableBackgroundRefresh bool
}

// EntryOptions overrides facade defaults for a single entry.
//
// TTL is a pointer so that an explicit zero (Set with ttl=0) is
// distinguishable from "unset, use the facade
// default": a nil TTL falls back to FacadeOptions.DefaultTTL, while a
// non-nil zero means immediate expiration.
type EntryOptions struct {
	TTL               *time.Duration
	SlidingExpiration bool
	JitterRatio       *float64 // nil => facade default
	NegativeCacheTTL  time.Duration
	KeyPrefix         string
	SerializerName    string
	Resilience        *ResilienceOptions // nil => facade default
}

// FacadeOptions configures a Facade.
type FacadeOptions struct {
	KeyPrefix          string
	DefaultTTL         time.Duration
	JitterRatio        float64
	FailFastOnL2Errors bool
	Resilience         ResilienceOptions
}

// DefaultFacadeOptions returns conservative defaults for a new Facade.
func DefaultFacadeOptions() FacadeOptions {
	return FacadeOptions{
		DefaultTTL:  5 * time.Minute,
		JitterRatio: 0,
		Resilience: ResilienceOptions{
			FailSafeMaxDuration:     0,
			EnableBackgroundRefresh: true,
		},
	}
}

// resilienceFor resolves the effective resilience options for a call,
// applying the per-entry override over the facade default.
func (o FacadeOptions) resilienceFor(entry *EntryOptions) ResilienceOptions {
	if entry != nil && entry.Resilience != nil {
		return *entry.Resilience
	}
	return o.Resilience
}

func (o FacadeOptions) ttlFor(entry *EntryOptions) time.Duration {
	if entry != nil && entry.TTL != nil {
		return *entry.TTL
	}
	return o.DefaultTTL
}

func (o FacadeOptions) jitterFor(entry *EntryOptions) float64 {
	if entry != nil && entry.JitterRatio != nil {
		return *entry.JitterRatio
	}
	return o.JitterRatio
}
