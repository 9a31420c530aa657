package enums

// UserRole identifies what a marketplace account may do.
type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleHost    UserRole = "host"
	UserRoleAdmin   UserRole = "admin"
)

var userRoles = domain[UserRole]{"user role", []UserRole{UserRoleStudent, UserRoleHost, UserRoleAdmin}}

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool { return userRoles.has(r) }

func ParseUserRole(raw string) (UserRole, error) { return userRoles.parse(raw) }
