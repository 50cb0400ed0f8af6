// Package cache models a persisted, derived artifact that stays valid only
// while the key it was computed under matches the requested key.
package cache

import "fmt"

// Artifact wires the persistence callbacks of one derived artifact.
// K is the cache key (for example a normalization scheme); V is the value.
type Artifact[K comparable, V any] struct {
	Name string
	// Exists reports whether the persisted artifact is present.
	Exists func() (bool, error)
	// Recorded returns the key the persisted artifact was computed under.
	// ok is false when no key has been recorded.
	Recorded func() (key K, ok bool, err error)
	Load     func() (V, error)
	Compute  func(key K) (V, error)
	// Store persists v.
	Store func(v V) error
	// Record remembers key as the one the persisted artifact belongs to.
	Record func(key K) error
	// Forget clears the recorded key. Get calls it before overwriting the
	// persisted artifact, so a failed Store or Record leaves no key that
	// names the new data.
	Forget func() error
}

// Get returns the artifact for key. hit reports whether the persisted copy
// was reused. On a miss the value is computed, the old key forgotten, the
// value stored and the new key recorded, in that order. A failure after
// Forget leaves the artifact with no recorded key, so the next Get misses.
func (a *Artifact[K, V]) Get(key K) (v V, hit bool, err error) {
	if ok, err := a.valid(key); err != nil {
		return v, false, err
	} else if ok {
		v, err = a.Load()
		if err == nil {
			return v, true, nil
		}
		// An unreadable artifact is recomputed.
	}
	v, err = a.Compute(key)
	if err != nil {
		return v, false, err
	}
	if err := a.Forget(); err != nil {
		return v, false, fmt.Errorf("forget %s key: %w", a.Name, err)
	}
	if err := a.Store(v); err != nil {
		return v, false, fmt.Errorf("store %s: %w", a.Name, err)
	}
	if err := a.Record(key); err != nil {
		return v, false, fmt.Errorf("record %s key: %w", a.Name, err)
	}
	return v, false, nil
}

// Valid reports whether a persisted artifact exists for key.
func (a *Artifact[K, V]) Valid(key K) (bool, error) {
	return a.valid(key)
}

func (a *Artifact[K, V]) valid(key K) (bool, error) {
	exists, err := a.Exists()
	if err != nil {
		return false, fmt.Errorf("check %s: %w", a.Name, err)
	}
	if !exists {
		return false, nil
	}
	recorded, ok, err := a.Recorded()
	if err != nil {
		return false, fmt.Errorf("read %s key: %w", a.Name, err)
	}
	return ok && recorded == key, nil
}
