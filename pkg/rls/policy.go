package rls

import "fmt"

// Session variable names the policies read. They are set per connection by
// Acquire before any statement touches a secured table, and reset to the
// empty string on release. An empty current_user makes every policy
// predicate false: unauthenticated sessions see nothing.
const (
	CurrentUserSetting  = "app.current_user"
	RequiredMaskSetting = "app.required_mask"
)

// Policy generates the row-level security DDL for one secured table.
//
// SELECT is filtered by the permission cache: a row is visible when the
// session user holds the required mask directly on the row, or on any entry
// of the row's ancestor chain. Ancestor ids are stored as qualified
// "{type}:{id}" refs, so the inherited check composes the cache row's type
// and id the same way.
//
// INSERT, UPDATE and DELETE pass through: write authorization is enforced by
// the lifecycle manager's relation checks before any mutation reaches the
// database.
//
// The DDL is idempotent and reapplied on every migration run.
func Policy(table, fgaType string) string {
	return fmt.Sprintf(`
ALTER TABLE %[1]s ENABLE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS rls_%[1]s_select ON %[1]s;
CREATE POLICY rls_%[1]s_select ON %[1]s FOR SELECT USING (
    NULLIF(current_setting('%[3]s', true), '') IS NOT NULL AND (
        EXISTS (
            SELECT 1 FROM permissions p
            WHERE p.object_type = '%[2]s'
              AND p.object_id = %[1]s.id
              AND p.user_id = current_setting('%[3]s', true)
              AND (p.permission_mask & CAST(NULLIF(current_setting('%[4]s', true), '') AS integer)) = CAST(NULLIF(current_setting('%[4]s', true), '') AS integer)
        )
        OR
        EXISTS (
            SELECT 1 FROM permissions p
            WHERE p.user_id = current_setting('%[3]s', true)
              AND (p.permission_mask & CAST(NULLIF(current_setting('%[4]s', true), '') AS integer)) = CAST(NULLIF(current_setting('%[4]s', true), '') AS integer)
              AND p.object_type || ':' || p.object_id = ANY(%[1]s.ancestor_ids)
        )
    )
);

DROP POLICY IF EXISTS rls_%[1]s_insert ON %[1]s;
CREATE POLICY rls_%[1]s_insert ON %[1]s FOR INSERT WITH CHECK (true);
DROP POLICY IF EXISTS rls_%[1]s_update ON %[1]s;
CREATE POLICY rls_%[1]s_update ON %[1]s FOR UPDATE USING (true);
DROP POLICY IF EXISTS rls_%[1]s_delete ON %[1]s;
CREATE POLICY rls_%[1]s_delete ON %[1]s FOR DELETE USING (true);
`, table, fgaType, CurrentUserSetting, RequiredMaskSetting)
}
