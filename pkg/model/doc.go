// Package model defines the data shared by the form engine: the category
// schema fetched from the document store, the derived field type
// configuration, per-field state and emission factor records. Only
// FieldDescriptor.Name is treated as an identity; titles, descriptions and
// instructions are display values that a refresh may overwrite.
package model
