// Package calculate exposes the generic calculation endpoint over net/http.
//
// GET lists the categories of the current schema with their required and
// optional fields. POST accepts {category, data}, validates the payload
// against the category (structure through an OpenAPI request schema, then
// the field rules) and forwards it to the calculation backend. Backend
// failures are relayed with the backend's status code; transport failures
// become 502 Bad Gateway.
package calculate
