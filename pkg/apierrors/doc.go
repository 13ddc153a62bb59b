// Package apierrors defines the HTTP-status error taxonomy of the gateway.
//
// Handlers return these errors to abort with a status; the dispatcher turns
// them into a {"message": ..., "errors": [...]} body. The errors key is only
// present for validation and resource errors.
//
//	return nil, apierrors.Resource(http.StatusNotFound, "not found", "id required")
//
// Struct validation goes through go-playground/validator:
//
//	if err := apierrors.ValidateStruct(&req, "Could not create user."); err != nil {
//		return nil, err
//	}
package apierrors
