// Package authz centralizes authorization. Every handler consults the one
// policy function instead of branching on roles inline, so the full access
// matrix is readable (and testable) in a single place.
package authz

import "github.com/google/uuid"

// Roles, ordered by privilege.
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RoleMember     = "member"
)

// Action is something a request wants to do.
type Action string

const (
	// ActionAssemblePrompt builds a prompt for a chatbot request.
	ActionAssemblePrompt Action = "assemble_prompt"
	// ActionAssembleOnBehalf builds a prompt scoped to an explicit user or
	// team other than the caller, for service-level integrations.
	ActionAssembleOnBehalf Action = "assemble_on_behalf"
	// ActionReadContext inspects the assembled context for a chatbot.
	ActionReadContext Action = "read_context"
	// ActionManageChatbots covers chatbot and node-link writes.
	ActionManageChatbots Action = "manage_chatbots"
	// ActionManageInstructions covers instruction writes and cache admin.
	ActionManageInstructions Action = "manage_instructions"
	// ActionImpersonate starts an impersonation session.
	ActionImpersonate Action = "impersonate"
)

// Principal is the effective identity of a request. When impersonating,
// UserID and Role reflect the impersonated member and Impersonated is true.
type Principal struct {
	UserID       uuid.UUID
	Role         string
	Impersonated bool
}

// Decision is the policy outcome. Reason is safe to return to the client.
type Decision struct {
	Allow  bool
	Reason string
}

func allow() Decision { return Decision{Allow: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Authorize is the single authorization policy.
//
// Management actions are never allowed while impersonating: an impersonation
// session exists to see what a member sees, not to act with elevated rights
// under a member's identity trail.
func Authorize(p Principal, action Action) Decision {
	if p.UserID == uuid.Nil {
		return deny("authentication required")
	}

	switch action {
	case ActionAssemblePrompt, ActionReadContext:
		return allow()

	case ActionAssembleOnBehalf:
		if p.Impersonated {
			return deny("scope overrides are disabled while impersonating")
		}
		if p.Role != RoleAdmin && p.Role != RoleSuperadmin {
			return deny("admin role required to assemble for another scope")
		}
		return allow()

	case ActionManageChatbots, ActionManageInstructions:
		if p.Impersonated {
			return deny("management actions are disabled while impersonating")
		}
		if p.Role != RoleAdmin && p.Role != RoleSuperadmin {
			return deny("admin role required")
		}
		return allow()

	case ActionImpersonate:
		if p.Impersonated {
			return deny("already impersonating")
		}
		if p.Role != RoleSuperadmin {
			return deny("superadmin role required")
		}
		return allow()

	default:
		return deny("unknown action")
	}
}
