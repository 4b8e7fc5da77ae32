// Package grant manages dynamic permissions: grants issued to a user
// outside the static role table, optionally scoped to one resource or one
// role and optionally time-limited.
//
// A grant is created active. It leaves that state either by an explicit
// Revoke, which is irreversible and recorded as a Revocation, or by
// expiring. Expiry is computed from ExpiresAt on every read, so an expired
// grant never applies even before SweepExpired has deactivated it.
// Inactive grants are deleted by Purge once the retention window passes.
//
// The Manager keeps secondary indexes by user, role and permission. All
// methods are safe for concurrent use; readers never observe a partially
// applied grant or revocation.
package grant
