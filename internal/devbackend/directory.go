package devbackend

import (
	"crypto/subtle"
	"strings"
	"sync"
)

const (
	roleAdmin   = "admin"
	roleTeacher = "teacher"
	roleStudent = "student"
	roleUnknown = "unknown"
)

// Account is a directory row. Fields carries the role-specific columns
// (student_id, roll_no, subject, ...) returned by /auth/me.
type Account struct {
	LoginID  string
	Password string
	Name     string
	Email    string
	Fields   map[string]interface{}
}

type Directory struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewDirectory(accounts ...Account) *Directory {
	d := &Directory{accounts: make(map[string]Account, len(accounts))}
	for _, account := range accounts {
		d.Put(account)
	}
	return d
}

// DemoAccounts seeds one account per role for local runs.
func DemoAccounts() []Account {
	return []Account{
		{
			LoginID:  "65000001",
			Password: "admin123",
			Name:     "Department Admin",
			Email:    "admin@dept.local",
			Fields:   map[string]interface{}{"admin_id": 1},
		},
		{
			LoginID:  "70000001",
			Password: "teacher123",
			Name:     "Ram Sharma",
			Email:    "ram@dept.local",
			Fields:   map[string]interface{}{"teacher_id": 1, "subject": "Computer Networks"},
		},
		{
			LoginID:  "83000001",
			Password: "student123",
			Name:     "Sita Rai",
			Email:    "sita@dept.local",
			Fields: map[string]interface{}{
				"student_id": 1,
				"roll_no":    "CE-2021-07",
				"semester":   5,
				"program_id": 2,
			},
		},
	}
}

func (d *Directory) Put(account Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[account.LoginID] = account
}

func (d *Directory) Lookup(loginID string) (Account, bool) {
	if roleFromLogin(loginID) == roleUnknown {
		return Account{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	account, ok := d.accounts[loginID]
	return account, ok
}

// Verify returns the account when the password matches.
func (d *Directory) Verify(loginID, password string) (Account, bool) {
	account, ok := d.Lookup(loginID)
	if !ok {
		return Account{}, false
	}
	if subtle.ConstantTimeCompare([]byte(account.Password), []byte(password)) != 1 {
		return Account{}, false
	}
	return account, true
}

func roleFromLogin(loginID string) string {
	switch {
	case strings.HasPrefix(loginID, "65"):
		return roleAdmin
	case strings.HasPrefix(loginID, "70"):
		return roleTeacher
	case strings.HasPrefix(loginID, "83"):
		return roleStudent
	default:
		return roleUnknown
	}
}

// safeUser is the /auth/me payload: every column except the password, plus role.
func safeUser(account Account) map[string]interface{} {
	user := make(map[string]interface{}, len(account.Fields)+4)
	for key, value := range account.Fields {
		user[key] = value
	}
	user["login_id"] = account.LoginID
	user["name"] = account.Name
	user["email"] = account.Email
	user["role"] = roleFromLogin(account.LoginID)
	return user
}
