package cache

import (
	"math/rand/v2"
	"time"
)

// applyJitter perturbs ttl by ttl*(1+U), where U is drawn uniformly from
// [-ratio, +ratio], and floors the result at 1ms.
func applyJitter(ttl time.Duration, ratio float64) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	u := ratio * (rand.Float64()*2 - 1)
	jittered := time.Duration(float64(ttl) * (1 + u))
	if jittered < time.Millisecond {
		jittered = time.Millisecond
	}
	return jittered
}
