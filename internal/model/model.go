package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

var (
	ErrUserMissing = errors.New("user_missing")
	ErrRoleMissing = errors.New("role_missing")
	ErrUnknownRole = errors.New("unknown_role")
)

func ParseRole(value string) (Role, error) {
	switch Role(strings.TrimSpace(value)) {
	case "":
		return "", ErrRoleMissing
	case RoleStudent:
		return RoleStudent, nil
	case RoleTeacher:
		return RoleTeacher, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrUnknownRole
	}
}

// User is the authoritative identity returned by the backend. The concrete
// type is one of *StudentUser, *TeacherUser or *AdminUser, chosen by role.
type User interface {
	Role() Role
	Profile() Identity
	sealed()
}

type Identity struct {
	LoginID string `json:"login_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

type StudentUser struct {
	Identity
	StudentID FlexInt                    `json:"student_id,omitempty"`
	RollNo    string                     `json:"roll_no,omitempty"`
	Semester  FlexInt                    `json:"semester,omitempty"`
	ProgramID FlexInt                    `json:"program_id,omitempty"`
	Extra     map[string]json.RawMessage `json:"-"`
}

type TeacherUser struct {
	Identity
	TeacherID FlexInt                    `json:"teacher_id,omitempty"`
	Subject   string                     `json:"subject,omitempty"`
	Extra     map[string]json.RawMessage `json:"-"`
}

type AdminUser struct {
	Identity
	AdminID FlexInt                    `json:"admin_id,omitempty"`
	Extra   map[string]json.RawMessage `json:"-"`
}

func (u *StudentUser) Role() Role        { return RoleStudent }
func (u *StudentUser) Profile() Identity { return u.Identity }
func (u *StudentUser) sealed()           {}

func (u *TeacherUser) Role() Role        { return RoleTeacher }
func (u *TeacherUser) Profile() Identity { return u.Identity }
func (u *TeacherUser) sealed()           {}

func (u *AdminUser) Role() Role        { return RoleAdmin }
func (u *AdminUser) Profile() Identity { return u.Identity }
func (u *AdminUser) sealed()           {}

var knownFields = map[Role][]string{
	RoleStudent: {"login_id", "name", "email", "role", "student_id", "roll_no", "semester", "program_id"},
	RoleTeacher: {"login_id", "name", "email", "role", "teacher_id", "subject"},
	RoleAdmin:   {"login_id", "name", "email", "role", "admin_id"},
}

// DecodeUser picks the variant from the "role" field. Only a missing or
// unknown role fails the decode. Role-specific attributes are opaque: a value
// that does not fit its typed field is kept raw in Extra, as are fields the
// variant does not know about.
func DecodeUser(raw []byte) (User, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, ErrUserMissing
	}

	var roleValue string
	if value, ok := fields["role"]; ok {
		_ = json.Unmarshal(value, &roleValue)
	}
	role, err := ParseRole(roleValue)
	if err != nil {
		return nil, err
	}

	d := &lenientDecoder{fields: fields, extra: leftover(fields, knownFields[role])}
	var identity Identity
	d.field("login_id", &identity.LoginID)
	d.field("name", &identity.Name)
	d.field("email", &identity.Email)

	switch role {
	case RoleStudent:
		user := &StudentUser{Identity: identity}
		d.field("student_id", &user.StudentID)
		d.field("roll_no", &user.RollNo)
		d.field("semester", &user.Semester)
		d.field("program_id", &user.ProgramID)
		user.Extra = d.extra
		return user, nil
	case RoleTeacher:
		user := &TeacherUser{Identity: identity}
		d.field("teacher_id", &user.TeacherID)
		d.field("subject", &user.Subject)
		user.Extra = d.extra
		return user, nil
	default:
		user := &AdminUser{Identity: identity}
		d.field("admin_id", &user.AdminID)
		user.Extra = d.extra
		return user, nil
	}
}

type lenientDecoder struct {
	fields map[string]json.RawMessage
	extra  map[string]json.RawMessage
}

func (d *lenientDecoder) field(key string, target interface{}) {
	value, ok := d.fields[key]
	if !ok {
		return
	}
	if err := json.Unmarshal(value, target); err != nil {
		if d.extra == nil {
			d.extra = map[string]json.RawMessage{}
		}
		d.extra[key] = value
	}
}

// EncodeUser writes the flat backend shape back out, role and Extra included.
func EncodeUser(user User) ([]byte, error) {
	if user == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for key, value := range extraOf(user) {
		fields[key] = value
	}
	role, _ := json.Marshal(string(user.Role()))
	fields["role"] = role
	return json.Marshal(fields)
}

func extraOf(user User) map[string]json.RawMessage {
	switch u := user.(type) {
	case *StudentUser:
		return u.Extra
	case *TeacherUser:
		return u.Extra
	case *AdminUser:
		return u.Extra
	default:
		return nil
	}
}

func leftover(fields map[string]json.RawMessage, known []string) map[string]json.RawMessage {
	skip := make(map[string]struct{}, len(known))
	for _, key := range known {
		skip[key] = struct{}{}
	}
	var extra map[string]json.RawMessage
	for key, value := range fields {
		if _, ok := skip[key]; ok {
			continue
		}
		if extra == nil {
			extra = map[string]json.RawMessage{}
		}
		extra[key] = value
	}
	return extra
}

// FlexInt accepts a JSON number with no fractional part, a numeric string or
// null.
type FlexInt int64

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	value := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if value == "" || value == "null" {
		*n = 0
		return nil
	}
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
		*n = FlexInt(parsed)
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	if parsed != math.Trunc(parsed) || math.Abs(parsed) > math.MaxInt64 {
		return fmt.Errorf("flexint: %s is not a whole number", value)
	}
	*n = FlexInt(parsed)
	return nil
}
