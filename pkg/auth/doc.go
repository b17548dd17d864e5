// Package auth registers accounts and exchanges credentials for sessions.
//
// # Registration
//
// A new account either founds an organization, becoming its admin, or joins
// an existing one by slug as a regular user. An account may also be created
// without an organization; it can sign in but sees no projects and may not
// submit.
//
//	svc := auth.NewService(store, sessions, logger)
//	user, err := svc.Register(ctx, auth.RegisterInput{
//		Name:             "Ada",
//		Email:            "ada@example.com",
//		Password:         "correct horse",
//		OrganizationName: "Analytical Engines",
//	})
//
// # Login
//
// Passwords are stored as bcrypt hashes. Login returns a signed session
// token; the HTTP layer sets it as the pitchdesk_session cookie and also
// returns it in the body for API clients.
//
// Unknown emails and wrong passwords produce the same Unauthenticated error
// and take roughly the same time.
//
// # Audit
//
// Every registration and login attempt is written to the security audit log
// with the client address and outcome.
package auth
