package jobprocessor

import (
	"github.com/corvidworks/hive/internal/browserpool"
	"github.com/corvidworks/hive/internal/models"
)

// PoolSet is the straightforward Pools implementation: one browserpool.Pool
// per configured BrowserFamily, built once at process startup by cmd/hive.
type PoolSet map[models.BrowserFamily]*browserpool.Pool

// Get implements Pools.
func (s PoolSet) Get(family models.BrowserFamily) (*browserpool.Pool, bool) {
	pool, ok := s[family]
	return pool, ok
}
