// Package adapters groups the HTTP clients behind the lookup capabilities.
// Each subpackage implements one lookup interface against one public API.
package adapters
