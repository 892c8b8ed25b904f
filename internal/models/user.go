package models

import (
	"encoding/json"
	"fmt"
)

// User is the profile of the authenticated user as returned by GET /users/me.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	DealerID string `json:"dealer_id,omitempty"`
	BranchID string `json:"branch_id,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// ProfileUpdate is the partial payload accepted by PUT /users/me.
//
// Empty fields are omitted so the server only sees what the caller changed.
type ProfileUpdate struct {
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	NewPassword string `json:"new_password,omitempty"`
}

// Empty reports whether the update carries no fields.
func (p ProfileUpdate) Empty() bool {
	return p.Username == "" && p.Email == "" && p.FullName == "" && p.NewPassword == ""
}

// ProfilePatch is the subset of profile fields echoed back by PUT /users/me.
//
// Pointer fields distinguish "absent from the response" from "set to empty".
type ProfilePatch struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	DealerID *string `json:"dealer_id"`
	BranchID *string `json:"branch_id"`
}

// Merge returns a copy of u with every field present in p applied on top.
//
// Identity fields (id, role) are never changed by a profile update.
func (u User) Merge(p ProfilePatch) User {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.DealerID != nil {
		u.DealerID = *p.DealerID
	}
	if p.BranchID != nil {
		u.BranchID = *p.BranchID
	}
	return u
}

// DisplayName prefers the full name, falling back to the username.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// UnmarshalJSON accepts both "id" and the document-store "_id" key.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		DocID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.ID == "" {
		u.ID = aux.DocID
	}
	return nil
}

// UserCreate is the payload of POST /users/.
type UserCreate struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Role         Role   `json:"role"`
	DealerID     string `json:"dealer_id,omitempty"`
	BranchID     string `json:"branch_id,omitempty"`
	FullName     string `json:"full_name,omitempty"`
	ShowroomName string `json:"showroom_name,omitempty"`
}

// Validate checks the fields the server requires.
func (c UserCreate) Validate() error {
	if c.Username == "" || c.Email == "" || c.Password == "" {
		return fmt.Errorf("username, email and password are required")
	}
	if !c.Role.Valid() {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	if c.Role != RoleSuperAdmin && c.DealerID == "" {
		return fmt.Errorf("role %s requires a dealer id", c.Role)
	}
	return nil
}

// UserUpdate is the payload of PUT /users/{id}. Nil fields are not sent.
//
// An empty DealerID clears the dealer assignment (sent as null).
type UserUpdate struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *Role   `json:"role,omitempty"`
	DealerID *string `json:"-"`
	FullName *string `json:"full_name,omitempty"`
}

// MarshalJSON writes an empty DealerID as null.
func (u UserUpdate) MarshalJSON() ([]byte, error) {
	type plain UserUpdate
	if u.DealerID != nil && *u.DealerID == "" {
		return json.Marshal(struct {
			plain
			DealerID *string `json:"dealer_id"`
		}{plain: plain(u)})
	}
	return json.Marshal(struct {
		plain
		DealerID *string `json:"dealer_id,omitempty"`
	}{plain: plain(u), DealerID: u.DealerID})
}
