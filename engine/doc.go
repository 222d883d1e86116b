// Package engine loads the simulation engine module on wazero and provides
// the host callbacks it imports.
//
// # Lifecycle
//
// A Loader fetches, compiles and instantiates a module at most once per
// location. Concurrent Load calls for the same location share one in-flight
// attempt; both the resulting Module and a load failure are cached.
//
//	loader := engine.NewLoader(engine.Config{})
//	mod, err := loader.Load(ctx, "engine.wasm")
//
// Each Module owns its own wazero runtime, so a loaded module never shares
// host state with another.
//
// # Host Callbacks
//
// Modules may import two functions from the "env" namespace:
//
//	getrandom_fill(dest i32, len i32) -> i32   fill guest memory with random bytes
//	report_progress(pct i32)                   forward progress to the listener
//
// Progress goes to the module's ProgressSlot. A listener is installed for
// the duration of a single call and must be uninstalled afterwards:
//
//	uninstall, err := mod.Host().Progress.Install(onProgress)
//	if err != nil { ... }
//	defer uninstall()
//
// # Memory
//
// Memory wraps the exported linear memory. GrowMemory grows it by whole
// 64 KiB pages only when a requested size exceeds the current capacity.
package engine
