// Package httputil provides the JSON reply, error mapping and request parsing
// helpers used by the API handlers.
//
// Handlers return classified errors and let WriteAppError pick the status:
//
//	project, err := h.projects.Get(ctx, actor, id)
//	if err != nil {
//		httputil.WriteAppError(w, r, err)
//		return
//	}
//	httputil.WriteSuccess(w, project)
//
// Request ids and the request logger are attached by RequestIDMiddleware and
// read back with observability.FromContext.
package httputil
