package store

import "time"

type Project struct {
	Name      string
	Data      []byte
	UpdatedAt time.Time
}
