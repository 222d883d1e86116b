// Package errors provides structured error types for the simulation bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the engine export involved, a field path,
// the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindProtocol).
//		Export("simulate_vs_list_with_ranks").
//		Detail("record count %d exceeds capacity %d", n, capacity).
//		Build()
//
// Or use convenience constructors for the common cases:
//
//	err := errors.ModuleFailure("simulate_vs_list_equity", -5)
//	err := errors.InvalidCard("Zz")
//
// The Err* sentinels match by Kind regardless of Phase:
//
//	if errors.Is(err, simerrors.ErrModuleFailure) { ... }
package errors
