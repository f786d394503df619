package model

import "time"

type Base struct {
	ID         string    `json:"id" dynamo:"id,hash"`
	ArchivedAt time.Time `json:"archived_at" dynamo:"archived_at"`
}
