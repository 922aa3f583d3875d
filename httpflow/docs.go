// Package httpflow binds the rpflow protocol pieces to net/http. It provides
// the three route handlers of the flow (login redirect, provider callback,
// logout), the authenticated-request guard that resolves a session from
// cookies and transparently refreshes expired tokens, and the sealed cookie
// storage the whole flow persists itself through.
//
// The package owns every cookie read and write: handlers built on top of it
// only ever see a typed rpflow.Session or a typed error.
package httpflow
