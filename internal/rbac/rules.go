package rbac

// Default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"learner": {
		"exam:view",
		"exam:submit",
	},
	"instructor": {
		"exam:view",
		"exam:compose",
		"question:write",
		"attempt:review",
	},
	"admin": {
		"*", // everything
	},
}
