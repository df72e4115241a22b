// Package cache provides a small thread-safe LRU cache for derived artifacts
// such as translated shader source.
//
//	c := cache.New[key, []byte](64)
//	code, err := c.GetOrCompute(k, func() ([]byte, error) { return translate(k) })
//
// Failed computations are not stored; the next lookup retries.
package cache
