// Package auth provides authentication for care-gateway's panel API.
//
// # Authentication Flow
//
// Professionals log in with email and password. Passwords are stored as
// bcrypt hashes; a successful login issues an HS256-signed JWT with typed
// SessionClaims: the subject carries the professional ID and the email
// claim identifies the account without a store lookup.
//
//	authn := auth.NewAuthenticator(store, verifier, 0, logger)
//	token, professional, err := authn.Login(ctx, email, password)
//
// # Token Verification
//
// Panel endpoints are protected by the HTTP middleware, which extracts the
// bearer token, verifies it and attaches the Identity to the request
// context:
//
//	mux.Handle("/api/patients", auth.Middleware(verifier)(handler))
//
// Handlers retrieve the identity with FromContext. The webhook endpoints
// are deliberately outside this middleware: the messaging platform
// authenticates with its own verify-token handshake instead.
package auth
