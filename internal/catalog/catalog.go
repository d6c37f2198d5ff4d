// Package catalog loads the pool of vote option descriptors a poll samples
// from when the station does not pin a fixed option list.
package catalog

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"
)

// Descriptor is a single option a listener can vote for.
type Descriptor struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// Catalog is an immutable pool of descriptors sampled uniformly without
// replacement to build a poll's option set.
type Catalog struct {
	descriptors []Descriptor
	byKey       map[string]Descriptor
}

// New builds a Catalog from descriptors, rejecting duplicate keys.
func New(descriptors []Descriptor) (*Catalog, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("catalog: no descriptors supplied")
	}
	byKey := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if d.Key == "" {
			return nil, fmt.Errorf("catalog: descriptor with empty key")
		}
		if _, dup := byKey[d.Key]; dup {
			return nil, fmt.Errorf("catalog: duplicate descriptor key %q", d.Key)
		}
		byKey[d.Key] = d
	}
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return &Catalog{descriptors: out, byKey: byKey}, nil
}

// LoadFile reads a YAML file of the form `descriptors: [{key, label}, ...]`.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var doc struct {
		Descriptors []Descriptor `yaml:"descriptors"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return New(doc.Descriptors)
}

// Len returns the number of distinct descriptors in the catalog.
func (c *Catalog) Len() int { return len(c.descriptors) }

// Has reports whether key names a descriptor in the catalog.
func (c *Catalog) Has(key string) bool {
	_, ok := c.byKey[key]
	return ok
}

// SampleN draws n distinct option keys uniformly at random without
// replacement, using crypto/rand so no two stations converge on a
// predictable sequence. n must not exceed Len().
func (c *Catalog) SampleN(n int) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("catalog: sample size must be positive, got %d", n)
	}
	if n > len(c.descriptors) {
		return nil, fmt.Errorf("catalog: cannot sample %d distinct options from %d descriptors", n, len(c.descriptors))
	}

	pool := make([]Descriptor, len(c.descriptors))
	copy(pool, c.descriptors)

	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx, err := randIndex(len(pool))
		if err != nil {
			return nil, err
		}
		keys = append(keys, pool[idx].Key)
		pool[idx] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}
	return keys, nil
}

func randIndex(n int) (int, error) {
	bi, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("catalog: random sample: %w", err)
	}
	return int(bi.Int64()), nil
}
