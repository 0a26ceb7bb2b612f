// Package forms serves the form schema, dependent select options and the
// server-rendered HTML form over net/http.
//
//	GET /api/forms                                  current schema
//	GET /api/forms/options?category=..&field=..     {data:[{value,label}]}
//	GET /forms/{category}                           HTML fragment
//
// Query parameters other than category and field on the options route are
// treated as the values already chosen in the form.
package forms
