// Package repository defines the data access interfaces for configctx.
//
// The Repository interface covers config context records, the inventory
// groups they are assigned to, and the targets (devices and virtual
// machines) whose context gets rendered. ContextStore is the narrow read
// side used when rendering. The implementation lives in the sqlite
// subpackage.
//
// # Storage rules
//
//   - Context assignments may reference groups that do not exist yet. Sync
//     writes them as found and the resolver reports them.
//   - Target memberships must reference existing groups. Deleting a group
//     drops the memberships that point at it.
//   - Records created by directory sync carry a "sync:<file>" source and are
//     replaced wholesale on every sync run.
package repository
