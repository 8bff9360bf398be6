package types

const (
	// RoleUser is the default role assigned at registration.
	RoleUser = "user"
	// RoleAdmin grants access to the dashboard and user administration.
	RoleAdmin = "admin"
)

// User represents an account in the system.
// It is the persisted credential record, so secret material is serialized;
// use Profile for anything leaving the process.
type User struct {
	// UserID is the immutable identity key of the user.
	UserID string `json:"user_id"`

	// Username is the display name. Login matches it case-insensitively,
	// but it is not guaranteed to be unique.
	Username string `json:"username"`

	// Email is optional and used for OTP delivery.
	Email string `json:"email,omitempty"`

	// Role is either RoleUser or RoleAdmin.
	Role string `json:"role"`

	// PasswordSalt and PasswordHash are hex strings, empty until a password is set.
	PasswordSalt string `json:"password_salt,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`

	// SecurityQuestion and SecurityAnswerHash back the question-based recovery path.
	SecurityQuestion   string `json:"security_question,omitempty"`
	SecurityAnswerHash string `json:"security_answer_hash,omitempty"`

	// PasswordResetOTP and PasswordResetOTPExpiry are only present while a
	// recovery window is open.
	PasswordResetOTP       string     `json:"password_reset_otp,omitempty"`
	PasswordResetOTPExpiry *Timestamp `json:"password_reset_otp_expiry,omitempty"`

	// CreatedAt is the registration time.
	CreatedAt Timestamp `json:"created_at"`

	// LastLogin is refreshed by registration and successful password checks.
	LastLogin Timestamp `json:"last_login"`

	// TotalLogins counts registrations and successful password checks.
	TotalLogins int `json:"total_logins"`
}

// HasPassword reports whether credentials have been set.
func (u User) HasPassword() bool {
	return u.PasswordSalt != "" && u.PasswordHash != ""
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Profile is the public view of a User.
type Profile struct {
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	Email            string    `json:"email,omitempty"`
	Role             string    `json:"role"`
	SecurityQuestion string    `json:"security_question,omitempty"`
	HasPassword      bool      `json:"has_password"`
	CreatedAt        Timestamp `json:"created_at"`
	LastLogin        Timestamp `json:"last_login"`
	TotalLogins      int       `json:"total_logins"`
}

// Profile strips credential material from the record.
func (u User) Profile() Profile {
	return Profile{
		UserID:           u.UserID,
		Username:         u.Username,
		Email:            u.Email,
		Role:             u.Role,
		SecurityQuestion: u.SecurityQuestion,
		HasPassword:      u.HasPassword(),
		CreatedAt:        u.CreatedAt,
		LastLogin:        u.LastLogin,
		TotalLogins:      u.TotalLogins,
	}
}

// Profiles maps Profile over users.
func Profiles(users []User) []Profile {
	out := make([]Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out
}
