package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"tycoon/internal/game"
)

type meta struct {
	Seq    int64                `json:"seq"`
	Clock  game.Clock           `json:"clock"`
	Claims map[string]time.Time `json:"claims"`
}

type bucketCodec struct {
	name   string
	encode func(st *State) any
	decode func(st *State, raw []byte) error
	same   func(a, b *State) bool
}

// mapBucket is for entities without slice or map fields, compared with ==.
// Values are replaced, never mutated, so an untouched entry keeps its
// pointers and compares equal.
func mapBucket[K, V comparable](name string, field func(st *State) *map[K]V) bucketCodec {
	b := deepMapBucket(name, field)
	b.same = func(a, c *State) bool { return maps.Equal(*field(a), *field(c)) }
	return b
}

func deepMapBucket[K comparable, V any](name string, field func(st *State) *map[K]V) bucketCodec {
	return bucketCodec{
		name:   name,
		encode: func(st *State) any { return *field(st) },
		decode: func(st *State, raw []byte) error {
			m := map[K]V{}
			if err := json.Unmarshal(raw, &m); err != nil {
				return err
			}
			*field(st) = m
			return nil
		},
		same: func(a, c *State) bool {
			return maps.EqualFunc(*field(a), *field(c), func(x, y V) bool { return reflect.DeepEqual(x, y) })
		},
	}
}

var buckets = []bucketCodec{
	{
		name: "meta",
		encode: func(st *State) any {
			return meta{Seq: st.Seq, Clock: st.Clock, Claims: st.Claims}
		},
		decode: func(st *State, raw []byte) error {
			var m meta
			if err := json.Unmarshal(raw, &m); err != nil {
				return err
			}
			st.Seq, st.Clock = m.Seq, m.Clock
			if m.Claims != nil {
				st.Claims = m.Claims
			}
			return nil
		},
		same: func(a, b *State) bool {
			return a.Seq == b.Seq && a.Clock == b.Clock && maps.Equal(a.Claims, b.Claims)
		},
	},
	mapBucket("countries", func(st *State) *map[int64]game.Country { return &st.Countries }),
	mapBucket("wilayas", func(st *State) *map[int64]game.Wilaya { return &st.Wilayas }),
	mapBucket("suppliers", func(st *State) *map[int64]game.Supplier { return &st.Suppliers }),
	mapBucket("supplier_products", func(st *State) *map[int64]game.SupplierProduct { return &st.SupplierProducts }),
	deepMapBucket("products", func(st *State) *map[int64]game.Product { return &st.Products }),
	mapBucket("demands", func(st *State) *map[int64]game.ProductDemand { return &st.Demands }),
	deepMapBucket("machines", func(st *State) *map[int64]game.Machine { return &st.Machines }),
	mapBucket("banks", func(st *State) *map[int64]game.Bank { return &st.Banks }),
	mapBucket("technologies", func(st *State) *map[int64]game.Technology { return &st.Technologies }),
	mapBucket("ad_packages", func(st *State) *map[int64]game.AdPackage { return &st.AdPackages }),
	mapBucket("profiles", func(st *State) *map[string]game.Profile { return &st.Profiles }),
	mapBucket("users", func(st *State) *map[int64]game.User { return &st.Users }),
	mapBucket("companies", func(st *State) *map[int64]game.Company { return &st.Companies }),
	mapBucket("employees", func(st *State) *map[int64]game.Employee { return &st.Employees }),
	mapBucket("company_machines", func(st *State) *map[int64]game.CompanyMachine { return &st.CompanyMachines }),
	mapBucket("production_orders", func(st *State) *map[int64]game.ProductionOrder { return &st.ProductionOrders }),
	mapBucket("maintenances", func(st *State) *map[int64]game.Maintenance { return &st.Maintenances }),
	mapBucket("company_products", func(st *State) *map[int64]game.CompanyProduct { return &st.CompanyProducts }),
	mapBucket("inventory_movements", func(st *State) *map[int64]game.InventoryMovement { return &st.Movements }),
	mapBucket("purchases", func(st *State) *map[int64]game.Purchase { return &st.Purchases }),
	mapBucket("sales", func(st *State) *map[int64]game.Sale { return &st.Sales }),
	mapBucket("loans", func(st *State) *map[int64]game.Loan { return &st.Loans }),
	mapBucket("company_technologies", func(st *State) *map[int64]game.CompanyTechnology { return &st.CompanyTechnologies }),
	mapBucket("ads", func(st *State) *map[int64]game.Ad { return &st.Ads }),
	mapBucket("transactions", func(st *State) *map[int64]game.Transaction { return &st.Transactions }),
	deepMapBucket("notifications", func(st *State) *map[int64]game.Notification { return &st.Notifications }),
	deepMapBucket("world_events", func(st *State) *map[int64]game.WorldEvent { return &st.WorldEvents }),
	mapBucket("modifiers", func(st *State) *map[int64]game.Modifier { return &st.Modifiers }),
}

// BucketNames lists every persisted bucket.
func BucketNames() []string {
	names := make([]string, len(buckets))
	for i, b := range buckets {
		names[i] = b.name
	}
	return names
}

// ChangedBuckets names the buckets whose content differs between prev and next.
func ChangedBuckets(prev, next *State) []string {
	var out []string
	for _, b := range buckets {
		if !b.same(prev, next) {
			out = append(out, b.name)
		}
	}
	return out
}

// EncodeBuckets serialises the named buckets, or all of them when names is
// empty, as one JSON payload per bucket.
func EncodeBuckets(st *State, names ...string) (map[string][]byte, error) {
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	out := make(map[string][]byte, len(buckets))
	for _, b := range buckets {
		if len(want) > 0 && !want[b.name] {
			continue
		}
		raw, err := json.Marshal(b.encode(st))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", b.name, err)
		}
		out[b.name] = raw
	}
	return out, nil
}

// DecodeBuckets rebuilds state from bucket payloads. Missing buckets stay empty.
func DecodeBuckets(payloads map[string][]byte) (*State, error) {
	st := NewState()
	for _, b := range buckets {
		raw, ok := payloads[b.name]
		if !ok || len(raw) == 0 {
			continue
		}
		if err := b.decode(st, raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", b.name, err)
		}
	}
	return st, nil
}

// digestCache remembers the hash of the last persisted payload per bucket so
// unchanged buckets are not rewritten.
type digestCache struct {
	mu      sync.Mutex
	digests map[string]uint64
}

func (d *digestCache) changed(payloads map[string][]byte) map[string]uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[string]uint64{}
	for name, raw := range payloads {
		sum := xxhash.Sum64(raw)
		if prev, ok := d.digests[name]; ok && prev == sum {
			continue
		}
		out[name] = sum
	}
	return out
}

func (d *digestCache) remember(sums map[string]uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.digests == nil {
		d.digests = map[string]uint64{}
	}
	for name, sum := range sums {
		d.digests[name] = sum
	}
}
