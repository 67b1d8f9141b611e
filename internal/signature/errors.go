package signature

import "errors"

var (
	// ErrDatabaseUnavailable means a signature document could not be read,
	// parsed or validated. The affected half of the database is empty.
	ErrDatabaseUnavailable = errors.New("signature: database unavailable")

	// ErrSchemaViolation means a document parsed as JSON but has the wrong shape.
	ErrSchemaViolation = errors.New("signature: document does not match schema")
)
