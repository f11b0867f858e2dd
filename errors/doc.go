// Package errors provides the structured error taxonomy used across the
// registry. Every failure a caller can observe carries an ErrorCode, a
// category that drives retry decisions, and optional metadata such as the
// offending payload field.
//
// # Error Categories
//
//   - Transient: the document store or event bus is unreachable
//   - Permanent: malformed payload, bad signature, unknown agent
//   - Internal: bugs and recovered panics
//
// # Error Codes
//
//   - INVALID_INPUT: schema violation, reported as HTTP 400
//   - UNAUTHORIZED: proof-of-ownership did not verify, HTTP 401
//   - NOT_FOUND: agent or DID absent, HTTP 404
//   - UNAVAILABLE: persistence failure, HTTP 500
//   - INTERNAL, PANIC: anything unexpected, HTTP 500
//
// # Usage
//
//	err := errors.InvalidInput(`"name" is required`, errors.WithField("name"))
//
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    field := errors.GetMetadata(err)["field"]
//	}
//
//	c.JSON(errors.HTTPStatus(err), gin.H{"success": false, "message": errors.PublicMessage(err)})
package errors
