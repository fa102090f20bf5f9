package types

// Tier is the authority of a user within one room. Higher values outrank lower ones.
type Tier int

const (
	TierAnonymous Tier = iota
	TierAuthenticated
	TierAdmin
	TierUnlimitedAdmin
	TierOwner
)

func (t Tier) String() string {
	switch t {
	case TierOwner:
		return "owner"
	case TierUnlimitedAdmin:
		return "unlimited admin"
	case TierAdmin:
		return "admin"
	case TierAuthenticated:
		return "user"
	default:
		return "anonymous user"
	}
}

// IsAdmin is true for both admin tiers and the owner.
func (t Tier) IsAdmin() bool {
	return t >= TierAdmin
}
