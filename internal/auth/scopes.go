package auth

// Scopes carried in local bearer tokens.
const (
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
)
