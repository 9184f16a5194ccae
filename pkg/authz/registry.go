package authz

const (
	RoleAdmin     = "admin"
	RoleAnonymous = "anonymous"
)

const ObjectRecordPrefix = "record."
