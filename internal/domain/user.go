package domain

import "time"

// Role enumerates ITSM user roles.
type Role string

const (
	RoleStaff      Role = "staff"
	RoleITSupport  Role = "it_support"
	RoleTechnician Role = "technician"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
)

// SupportRole reports whether the role may work tickets (claim, complete,
// escalate).
func (r Role) SupportRole() bool {
	return r == RoleITSupport || r == RoleTechnician || r == RoleAdmin
}

// ApproverRole reports whether the role may approve or reject requests.
func (r Role) ApproverRole() bool {
	return r == RoleManager || r == RoleAdmin
}

// User is the domain model for everyone in the system; role distinguishes
// requesters from support staff and managers.
type User struct {
	ID           string
	Username     string
	FullName     string
	Email        string
	PasswordHash string
	Role         Role
	DepartmentID *string
	Phone        string
	EmployeeID   *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Department groups users for routing purposes.
type Department struct {
	ID          string
	Name        string
	Code        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
