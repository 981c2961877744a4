package models

import "github.com/google/uuid"

// assignID fills a zero primary key so inserts work without gen_random_uuid().
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
