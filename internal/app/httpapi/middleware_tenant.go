package httpapi

import (
	"context"
	"net/http"
)

type ctxKey int

const ctxTenantKey ctxKey = iota

// withTenant stamps the single dashboard tenant onto every API request so
// handlers never reach into the application aggregate for identity.
func (h *Handler) withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxTenantKey, h.app.Tenant.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantID returns the tenant bound to the request, falling back to the
// application's tenant for routes outside the API subtree.
func (h *Handler) tenantID(r *http.Request) string {
	if id, ok := r.Context().Value(ctxTenantKey).(string); ok && id != "" {
		return id
	}
	return h.app.Tenant.ID
}
