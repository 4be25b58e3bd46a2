package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/ragmesh/ragmesh/internal/domain/user"
	"github.com/ragmesh/ragmesh/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		// Auth (register/login/refresh are public, exempted by middleware)
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/refresh", h.Refresh)
		r.Post("/auth/logout", h.Logout)
		r.Get("/auth/me", h.GetCurrentUser)
		r.Post("/auth/change-password", h.ChangePassword)
		r.Post("/auth/api-keys", h.CreateAPIKeyHandler)
		r.Get("/auth/api-keys", h.ListAPIKeysHandler)
		r.Post("/auth/api-keys/{id}/revoke", h.RevokeAPIKeyHandler)
		r.Delete("/auth/api-keys/{id}", h.DeleteAPIKeyHandler)

		// Tenants
		r.Get("/tenants", h.ListTenants)
		r.Post("/tenants", h.CreateTenant)
		r.Get("/tenants/{id}", h.GetTenant)
		r.Put("/tenants/{id}", h.UpdateTenant)

		// Projects
		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)

		// Membership
		r.Get("/projects/{id}/members", h.ListMembers)
		r.Put("/projects/{id}/members/{userId}", h.UpdateMemberRole)
		r.Delete("/projects/{id}/members/{userId}", h.RemoveMember)
		r.Post("/projects/{id}/invitations", h.InviteMember)
		r.Get("/projects/{id}/invitations", h.ListInvitations)
		r.Delete("/invitations/{id}", h.CancelInvitation)
		r.Post("/invitations/accept", h.AcceptInvitation)

		// Provider configs
		r.Post("/projects/{id}/providers", h.CreateProvider)
		r.Get("/projects/{id}/providers", h.ListProviders)
		r.Get("/providers/{id}", h.GetProvider)
		r.Put("/providers/{id}", h.UpdateProvider)
		r.Delete("/providers/{id}", h.DeleteProvider)

		// RAG operations, scoped to (tenant, project). Scope checks here
		// short-circuit API keys; the service layer re-checks role and
		// key binding.
		r.Route("/tenants/{tenantId}/projects/{projectId}", func(r chi.Router) {
			r.With(middleware.RequireScope(user.ScopeInsert)).
				Post("/documents", h.InsertDocuments)
			r.With(middleware.RequireScope(user.ScopeQuery)).
				Post("/query", h.QueryDocuments)
			r.With(middleware.RequireScope(user.ScopeDelete)).
				Delete("/documents", h.DropDocuments)
			r.With(middleware.RequireScope(user.ScopeInsert)).
				Post("/flush", h.FlushDocuments)
		})

		// Admin
		r.Get("/admin/pool", h.PoolStats)
	})
}
