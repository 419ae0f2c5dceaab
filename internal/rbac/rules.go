package rbac

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"student": {
		"catalog:view",
		"sitting:take",
		"sitting:view-own",
	},
	"teacher": {
		"catalog:view",
		"catalog:edit",
		"sitting:take",
		"sitting:view-own",
		"sitting:view-all",
		"users:list",
	},
	"admin": {
		"*", // everything
	},
}
