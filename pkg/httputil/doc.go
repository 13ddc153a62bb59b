// Package httputil provides HTTP utilities shared by the gateway host.
//
// # Response Helpers
//
// Every terminal error uses the same body shape:
//
//	httputil.WriteErrorMessage(w, http.StatusNotFound, "user not found")
//	// {"message":"user not found"}
//
//	httputil.WriteErrorMessage(w, http.StatusUnprocessableEntity, "", "name required")
//	// {"message":"422 Unprocessable Entity","errors":["name required"]}
//
// # Request Helpers
//
//	addr := httputil.ClientIP(r)
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(10*1024*1024),
//	)
package httputil
