package cache

// Cache stores values that never change once computed, e.g. tree heads of a fixed size.
type Cache[K comparable, V any] interface {
	Get(K) (V, bool)
	Add(K, V)
}
