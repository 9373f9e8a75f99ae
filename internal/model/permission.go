package model

// PermissionCode is an admin permission carried in the token claims.
type PermissionCode string

const (
	PermissionResultsRead PermissionCode = "results:read"
	PermissionScoringRun  PermissionCode = "scoring:run"
)
