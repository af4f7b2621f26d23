// Package sqlite persists crowd analytics output to SQLite. It provides
// stores for frame metrics and alerts over a migrated database handle, plus
// a Recorder that adapts both to the engine's persistence interface.
package sqlite
