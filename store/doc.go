// Package store defines the [Store] interface for decaying quota counters and
// provides two implementations:
//
//   - [MemoryStore]: fast, in-process counters that are lost on restart.
//   - [SQLiteStore]: persistent counters backed by a SQLite database.
//
// A Redis-backed store for counters shared by many processes lives in the
// store/redis subpackage. Custom backends can be created by implementing the
// [Store] interface; store/storetest contains the suite they should pass.
package store
