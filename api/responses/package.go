// Package responses formats API replies. Successes share one envelope and
// failures are RFC 7807 problem details derived from the error kind.
package responses
