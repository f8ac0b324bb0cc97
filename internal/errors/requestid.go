package errors

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

func requestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return chimw.GetReqID(ctx)
}
