package domain

import "time"

type Address struct {
	ID        int64
	FirstName string `validate:"required"`
	LastName  string `validate:"required"`
	Phone     string `validate:"required"`
	Street    string `validate:"required"`
	City      string `validate:"required"`
	State     string `validate:"required"`
	ZipCode   string `validate:"required"`
	Country   string `validate:"required"`
	IsDefault bool

	CreatedAt time.Time
}
