// Package gallerykit is the server-side core of an art gallery marketplace:
// role resolution for gallery members and the workflow that turns a member
// into an artist.
//
// # Core Concepts
//
// Role: one of user, artist or admin, ordered by rank. A subject may hold
// several role assignments; its effective role is the highest one, and a
// subject with no assignments is a user. The legacy name "superuser" reads as
// admin.
//
// Capability: a subject holding role E satisfies requirement R when
// rank(E) >= rank(R). Unknown requirements are never satisfied.
//
// Feature: a dot-separated name such as "artworks.create". The Registry maps
// feature patterns (with "*" wildcards) to the minimum role that unlocks them.
//
// Artist request: a subject's application for the artist role. It starts
// pending and is approved or rejected exactly once by an admin. Approval
// grants the artist role in the same transaction.
//
// # Basic Usage
//
//	// 1. Open the database and run migrations
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	db.Migrate(ctx, gallerykit.Migrations())
//
//	// 2. Create the service
//	service := gallerykit.NewService(gallerykit.NewBunStore(db.Bun()))
//
//	// 3. Open a session per caller
//	session := service.NewSession(subjectID)
//	if session.Allows(ctx, gallerykit.FeatureArtworksCreate) {
//	    // show the upload form
//	}
//
//	// 4. Drive the workflow
//	req, err := service.Submit(ctx, session, "Please consider me")
//	_, err = service.Resolve(ctx, adminSession, req.ID, gallerykit.DecisionApprove)
//
// # HTTP Middleware
//
//	mw := gallerykit.NewMiddleware(service,
//	    gallerykit.WithAuthenticator(gallerykit.BearerTokenAuthenticator(secret)))
//	r.Use(mw.InjectAuditContext, mw.LoadSession)
//	r.With(mw.RequireRole(gallerykit.RoleAdmin)).Get("/admin/requests", handler)
//
// # Consistency
//
// Resolve is a compare-and-set on the pending status, so a request is never
// resolved twice and a retried approval never grants twice. Reconcile repairs
// approved requests whose grant is missing, e.g. rows written by older
// clients that did the two writes separately.
package gallerykit
