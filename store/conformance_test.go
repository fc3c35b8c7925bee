package store_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ryhazerus/drl/store"
	"github.com/ryhazerus/drl/store/storetest"
)

var epoch = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

func TestMemoryStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (store.Store, func(time.Duration)) {
		clock := clockwork.NewFakeClockAt(epoch)
		return store.NewMemoryStore(store.WithMemoryClock(clock)), clock.Advance
	})
}

func TestSQLiteStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (store.Store, func(time.Duration)) {
		clock := clockwork.NewFakeClockAt(epoch)
		s, err := store.NewSQLiteStore(":memory:", store.WithSQLiteClock(clock))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		return s, clock.Advance
	})
}
