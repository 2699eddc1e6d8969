package db

import (
	"time"
)

type Player struct {
	ID        string
	Username  string
	Rating    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Match struct {
	ID        string
	RoomID    string
	HostID    string
	GameMode  string
	Status    string
	Players   string
	Result    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RatingHistory struct {
	ID           string
	MatchID      string
	PlayerID     string
	RatingChange int64
	Stats        string
	CreatedAt    time.Time
}
