package enums

import "fmt"

// ActorRole is the kind of caller behind an API token.
type ActorRole string

const (
	ActorRoleSeller   ActorRole = "seller"
	ActorRoleOperator ActorRole = "operator"
)

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	return r == ActorRoleSeller || r == ActorRoleOperator
}

func ParseActorRole(value string) (ActorRole, error) {
	r := ActorRole(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid actor role %q", value)
	}
	return r, nil
}
