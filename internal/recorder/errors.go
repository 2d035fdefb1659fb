package recorder

import "codeberg.org/mutker/encoderctl/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("recorder_invalid_config")
	ErrInvalidDBPath = errors.ErrorCode("recorder_invalid_db_path")

	// Storage errors
	ErrStorageInit      = errors.ErrorCode("recorder_storage_init_failed")
	ErrStorageClose     = errors.ErrorCode("recorder_storage_close_failed")
	ErrSchemaInitFailed = errors.ErrorCode("recorder_schema_init_failed")
	ErrTransaction      = errors.ErrorCode("recorder_transaction_failed")

	// Recording errors
	ErrInvalidSample = errors.ErrorCode("recorder_invalid_sample")
)
