package authz

import (
	"testing"

	"github.com/google/uuid"
)

func TestAuthorize(t *testing.T) {
	member := Principal{UserID: uuid.New(), Role: RoleMember}
	admin := Principal{UserID: uuid.New(), Role: RoleAdmin}
	superadmin := Principal{UserID: uuid.New(), Role: RoleSuperadmin}
	impersonating := Principal{UserID: uuid.New(), Role: RoleMember, Impersonated: true}
	anonymous := Principal{}

	tests := []struct {
		name      string
		principal Principal
		action    Action
		want      bool
	}{
		{"anonymous assemble", anonymous, ActionAssemblePrompt, false},
		{"member assemble", member, ActionAssemblePrompt, true},
		{"member read context", member, ActionReadContext, true},
		{"impersonated assemble", impersonating, ActionAssemblePrompt, true},
		{"impersonated read context", impersonating, ActionReadContext, true},

		{"member assemble on behalf", member, ActionAssembleOnBehalf, false},
		{"admin assemble on behalf", admin, ActionAssembleOnBehalf, true},
		{"superadmin assemble on behalf", superadmin, ActionAssembleOnBehalf, true},
		{"impersonated assemble on behalf", impersonating, ActionAssembleOnBehalf, false},

		{"member manage chatbots", member, ActionManageChatbots, false},
		{"admin manage chatbots", admin, ActionManageChatbots, true},
		{"superadmin manage chatbots", superadmin, ActionManageChatbots, true},
		{"impersonated manage chatbots", impersonating, ActionManageChatbots, false},

		{"member manage instructions", member, ActionManageInstructions, false},
		{"admin manage instructions", admin, ActionManageInstructions, true},
		{"impersonated manage instructions", impersonating, ActionManageInstructions, false},

		{"member impersonate", member, ActionImpersonate, false},
		{"admin impersonate", admin, ActionImpersonate, false},
		{"superadmin impersonate", superadmin, ActionImpersonate, true},
		{"nested impersonation", impersonating, ActionImpersonate, false},

		{"unknown action", superadmin, Action("launch_rockets"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Authorize(tt.principal, tt.action)
			if got.Allow != tt.want {
				t.Errorf("Allow = %v, want %v (reason: %q)", got.Allow, tt.want, got.Reason)
			}
			if !got.Allow && got.Reason == "" {
				t.Error("denied without a reason")
			}
		})
	}
}

func TestImpersonatingSuperadminCannotManage(t *testing.T) {
	// Even if the impersonated state somehow retained an elevated role, the
	// impersonation flag alone blocks management.
	p := Principal{UserID: uuid.New(), Role: RoleSuperadmin, Impersonated: true}
	if d := Authorize(p, ActionManageChatbots); d.Allow {
		t.Error("impersonating principal allowed to manage chatbots")
	}
	if d := Authorize(p, ActionImpersonate); d.Allow {
		t.Error("impersonating principal allowed to nest impersonation")
	}
}
