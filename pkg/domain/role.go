package domain

// Role is the actor class carried in bearer tokens.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) IsValid() bool {
	return r == RoleDoctor || r == RolePatient
}
