package gallerykit

import (
	"github.com/fernandezvara/dbkit"
)

// Migrations returns the database migrations for the gallery tables.
// Run them with db.Migrate(ctx, gallerykit.Migrations()).
//
// The profiles table is normally owned by the account service; it is created
// here only if missing so a fresh database is usable.
func Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "gallery-001",
			Description: "Create role_assignments table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_assignments (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    subject_id TEXT NOT NULL,
                    role TEXT NOT NULL,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    CONSTRAINT role_assignments_subject_role_key UNIQUE (subject_id, role)
                )`,
		},
		{
			ID:          "gallery-002",
			Description: "Create artist_requests table",
			SQL: `
                CREATE TABLE IF NOT EXISTS artist_requests (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    subject_id TEXT NOT NULL,
                    message TEXT NOT NULL,
                    status TEXT NOT NULL DEFAULT 'pending'
                        CHECK (status IN ('pending', 'approved', 'rejected')),
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    reviewed_by TEXT,
                    reviewed_at TIMESTAMPTZ
                )`,
		},
		{
			ID:          "gallery-003",
			Description: "Allow one pending artist request per subject",
			SQL: `
                CREATE UNIQUE INDEX IF NOT EXISTS artist_requests_one_pending
                    ON artist_requests (subject_id)
                    WHERE status = 'pending'`,
		},
		{
			ID:          "gallery-004",
			Description: "Create profiles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS profiles (
                    subject_id TEXT PRIMARY KEY,
                    display_name TEXT NOT NULL DEFAULT '',
                    bio TEXT NOT NULL DEFAULT ''
                )`,
		},
		{
			ID:          "gallery-005",
			Description: "Create artworks table",
			SQL: `
                CREATE TABLE IF NOT EXISTS artworks (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    artist_id TEXT NOT NULL,
                    artist_name TEXT NOT NULL,
                    title TEXT NOT NULL,
                    description TEXT NOT NULL DEFAULT '',
                    category TEXT NOT NULL,
                    medium TEXT NOT NULL,
                    dimensions TEXT,
                    price NUMERIC(12, 2) CHECK (price IS NULL OR price >= 0),
                    image_url TEXT,
                    is_available BOOLEAN NOT NULL DEFAULT true,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "gallery-006",
			Description: "Create role_audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_audit_log (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    actor_id TEXT NOT NULL,
                    action TEXT NOT NULL,
                    target_subject_id TEXT NOT NULL,
                    role TEXT NOT NULL,
                    artist_request_id TEXT,
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT
                )`,
		},
		{
			ID:          "gallery-007",
			Description: "Create indexes",
			SQL: `
                CREATE INDEX IF NOT EXISTS idx_role_assignments_subject ON role_assignments(subject_id);
                CREATE INDEX IF NOT EXISTS idx_artist_requests_subject_created ON artist_requests(subject_id, created_at DESC);
                CREATE INDEX IF NOT EXISTS idx_artist_requests_status_created ON artist_requests(status, created_at DESC);
                CREATE INDEX IF NOT EXISTS idx_artworks_artist ON artworks(artist_id);
                CREATE INDEX IF NOT EXISTS idx_role_audit_log_target ON role_audit_log(target_subject_id);
                CREATE INDEX IF NOT EXISTS idx_role_audit_log_timestamp ON role_audit_log(timestamp DESC)`,
		},
	}
}
