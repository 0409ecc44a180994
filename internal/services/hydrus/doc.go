// Package hydrus wraps the Hydrus client API endpoints Butler depends on.
//
// The Client speaks the access-key header protocol over an injectable HTTP
// doer so tests can stub transport behaviour. Every call returns a structured
// *APIError on failure carrying an HTTP-equivalent status (connection refused
// maps to 503, deadline exceeded to 504) so callers can treat failures as
// data rather than control flow. The package also normalizes the
// /get_services payload into a Catalog with typed lookups for the service
// kinds the rule engine cares about.
package hydrus
