package songbook

// TokenPurpose is the closed set of identity-token kinds. The purpose is
// embedded in the signed claims and checked on verification so a token minted
// for one flow can never be replayed against another.
type TokenPurpose string

const (
	PurposePasswordReset     TokenPurpose = "password_reset"
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposeEmailChange       TokenPurpose = "email_change"
	PurposeAccountDeletion   TokenPurpose = "account_deletion"
)

// claimPurpose is the claim key carrying the purpose tag.
const claimPurpose = "type"

// IsValid reports whether p is one of the defined purposes.
func (p TokenPurpose) IsValid() bool {
	switch p {
	case PurposePasswordReset, PurposeEmailVerification, PurposeEmailChange, PurposeAccountDeletion:
		return true
	default:
		return false
	}
}

func (p TokenPurpose) String() string {
	return string(p)
}
