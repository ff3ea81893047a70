package apperr

import "github.com/tuanvumaihuynh/versioned-catalog/pkg/zerror"

const (
	ValidationErrorCode    = "VALIDATION_FAILED"
	ConflictErrorCode      = "PRODUCT_VERSION_CONFLICT"
	NotFoundErrorCode      = "PRODUCT_NOT_FOUND"
	RouteNotFoundErrorCode = "ROUTE_NOT_FOUND"
	ConfigurationErrorCode = "CONFIGURATION_ERROR"
	StoreErrorCode         = "STORE_ERROR"
)

var (
	ValidationErr    = zerror.NewValidationFailed(ValidationErrorCode, "validation error")
	ConflictErr      = zerror.NewConflict(ConflictErrorCode, "product version already exists")
	NotFoundErr      = zerror.NewNotFound(NotFoundErrorCode, "product not found")
	RouteNotFoundErr = zerror.NewNotFound(RouteNotFoundErrorCode, "route not found")
	// ConfigurationErr is returned for every request while the target table is not configured.
	ConfigurationErr = zerror.NewInternalServerError(ConfigurationErrorCode, "TABLE_NAME environment variable is not set")
	StoreErr         = zerror.NewInternalServerError(StoreErrorCode, "store operation failed")
)

// ProductIDRequiredErr is the validation failure for a request without a product id.
var ProductIDRequiredErr = ValidationErr.WithMsg("product id is required")
