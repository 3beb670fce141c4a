// Package songbook is the backend for a lyrics and chords catalog: accounts,
// signed identity tokens, a deferred account deletion lifecycle, and the song
// catalog itself (artists, songs, favorites) persisted via Bun.
//
// Identity tokens:
//   - TokenCodec signs and verifies HS256 JWTs with injected clock and
//     secret. IdentityTokens layers purpose-typed tokens on top of it for
//     password reset, email verification, email change, and account deletion.
//     A token minted for one purpose never verifies for another, and all
//     verification failures look the same to the caller.
//
// Deletion lifecycle:
//   - Accounts move through active -> deletion_requested ->
//     deletion_scheduled, derived from two nullable timestamps on the users
//     row. AccountLifecycle.RequestDeletion stamps the request and returns a
//     confirmation token whose nonce is the request instant; ConfirmDeletion
//     redeems it and schedules the removal a grace period out. Cancelling, or
//     simply logging in again, clears both timestamps.
//   - DeletionSweeper removes due accounts on a ticker. Every mutation
//     carries its guard in the WHERE clause, so a login that lands between
//     listing and deleting always wins.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the authenticator,
//     lifecycle, and sweeper. Sinks run best-effort (errors are logged) so
//     you can forward to a database or queue without blocking requests.
package songbook
