package ownership

import (
	"testing"

	"github.com/hitoshi/expensebook/internal/model"
)

func TestRequireOwner(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		owner    string
		wantErr  bool
	}{
		{"本人", "acct-1", "acct-1", false},
		{"他人", "acct-1", "acct-2", true},
		{"未認証", "", "acct-1", true},
		{"両方空", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireOwner(tt.identity, tt.owner)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RequireOwner() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && model.KindOf(err) != model.KindForbidden {
				t.Errorf("kind = %q, want %q", model.KindOf(err), model.KindForbidden)
			}
		})
	}
}

func TestRequireMember(t *testing.T) {
	refs := []string{"t1", "t2"}

	if err := RequireMember(refs, "t2", model.KindExpense); err != nil {
		t.Errorf("RequireMember(member) error = %v", err)
	}

	for _, id := range []string{"t3", ""} {
		err := RequireMember(refs, id, model.KindIncome)
		if model.KindOf(err) != model.KindNotFound {
			t.Errorf("RequireMember(%q) kind = %q, want %q", id, model.KindOf(err), model.KindNotFound)
		}
	}

	if err := RequireMember(nil, "t1", model.KindExpense); model.KindOf(err) != model.KindNotFound {
		t.Errorf("RequireMember(nil refs) kind = %q, want %q", model.KindOf(err), model.KindNotFound)
	}
}
