// Package tenant defines the owning-user model. The deployment runs
// single-tenant: one default tenant is ensured at startup and owns every
// application. Real authentication stays outside this system.
package tenant

import "time"

// Tenant is an owning user.
type Tenant struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultUsername names the tenant created at startup.
const DefaultUsername = "admin"
