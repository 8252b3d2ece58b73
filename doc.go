/*
qbbillbridge v0.2.0

Summary:

qbbillbridge is an http server which sits between an internal finance
system and QuickBooks Online. It holds the single QuickBooks OAuth2
connection for the organisation and exposes a few plain JSON endpoints
so that the internal system never has to deal with tokens.

After following the Intuit OAuth2 flow at /auth/qb/start the server
stores the access token, refresh token and company (realm) id. Access
tokens are refreshed when they are within a margin of expiry, with
concurrent callers sharing a single refresh. The server can also be
started with a saved refresh token and realm id, skipping the login.

Endpoints:

	GET  /                    liveness text
	GET  /__ping              liveness json
	GET  /auth/qb/start       redirect to the Intuit login
	GET  /auth/qb/callback    oauth2 redirect target
	GET  /auth/qb/refresh     force a token refresh
	GET  /auth/qb/status      connection status
	POST /auth/qb/disconnect  revoke the tokens
	GET  /qb/vendors          vendors, filtered by ?name= and ?active=
	GET  /qb/accounts         accounts, also filtered by ?type=
	POST /qb/bills            create a bill from {vendorId, amount, memo, dueDate}
	GET  /metrics             prometheus metrics

Settings are read from flags, the environment or a .env file; run with
--help for the list.

The qbbillbridge/token package can be used on its own to run the
Intuit OAuth2 flow from a Go programme; see examples/example.go.
*/

package main
