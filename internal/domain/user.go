// Package domain contains entities without transport or storage logic.
package domain

import "strconv"

const MaxUsernameLen = 50

type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// Identity is what a verified credential yields.
type Identity struct {
	UserID      UserID
	DisplayName string
}
