package dispatch

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/apigate/pkg/apierrors"
	"github.com/platinummonkey/apigate/pkg/content"
	"github.com/platinummonkey/apigate/pkg/response"
)

// ExceptionHandler may claim an error raised while dispatching. A claiming
// handler returns its result and true; the result goes through the response
// pipeline like a handler result.
type ExceptionHandler func(ctx context.Context, err error) (interface{}, bool)

// ExceptionHandlers holds the registered handlers in registration order.
// Registration happens during bootstrap; the set is read-only afterwards.
type ExceptionHandlers struct {
	handlers []ExceptionHandler
}

// Register appends h. Earlier handlers get the first chance to claim.
func (e *ExceptionHandlers) Register(h ExceptionHandler) {
	e.handlers = append(e.handlers, h)
}

// Len returns the number of registered handlers
func (e *ExceptionHandlers) Len() int {
	if e == nil {
		return 0
	}
	return len(e.handlers)
}

// Handle offers err to each handler and returns the first claimed result
func (e *ExceptionHandlers) Handle(ctx context.Context, err error) (interface{}, bool) {
	if e == nil {
		return nil, false
	}
	for _, h := range e.handlers {
		if result, ok := h(ctx, err); ok {
			return result, true
		}
	}
	return nil, false
}

// HandlerFor adapts fn to an ExceptionHandler claiming every error that
// errors.As can convert to E:
//
//	handlers.Register(dispatch.HandlerFor(func(ctx context.Context, err *store.ConflictError) interface{} {
//		return response.New(content.F("message", "conflict", "id", err.ID), http.StatusConflict)
//	}))
func HandlerFor[E error](fn func(ctx context.Context, err E) interface{}) ExceptionHandler {
	return func(ctx context.Context, err error) (interface{}, bool) {
		var target E
		if !errors.As(err, &target) {
			return nil, false
		}
		return fn(ctx, target), true
	}
}

// errorResponse builds the generic {message, errors?} response of an error
// carrying an HTTP status. ok is false for any other error.
func errorResponse(err error) (*response.Response, bool) {
	status, ok := apierrors.StatusOf(err)
	if !ok {
		return nil, false
	}

	message := apierrors.StatusMessage(status)
	var apiErr *apierrors.Error
	if errors.As(err, &apiErr) {
		message = apiErr.PublicMessage()
	}

	body := content.F("message", message)
	var lister apierrors.ErrorLister
	if errors.As(err, &lister) {
		if list := lister.ErrorList(); len(list) > 0 {
			body = body.Set("errors", list)
		}
	}

	resp := response.New(body, status)
	var carrier apierrors.HeaderCarrier
	if errors.As(err, &carrier) {
		copyHeaders(resp.Header, carrier.ResponseHeaders())
	}
	return resp, true
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
