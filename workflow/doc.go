// Package workflow drives a data attestation from request to proof.
//
// A run moves through PREPARING (the preparer service encodes the request,
// retried with exponential backoff), SUBMITTING (one fee-paying ledger
// transaction, never retried) and AWAITING_PROOF (wait for the voting round to
// finalize, then poll the proof-distribution service). Completed proofs are
// cached in memory keyed by encoded request and round.
//
// Remote systems are reached through the Preparer, Submitter,
// FinalizationOracle and ProofService interfaces; HTTP and EVM
// implementations live under clients/.
package workflow
