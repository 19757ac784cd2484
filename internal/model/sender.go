package model

import "github.com/google/uuid"

// Sender is whoever authored a message, or the peer of a direct
// conversation. The concrete type is UserSender or BotSender.
type Sender interface {
	SenderID() uuid.UUID
	sender()
}

type UserSender struct {
	ID        uuid.UUID
	Username  string
	FirstName string
	LastName  string
}

type BotSender struct {
	ID   uuid.UUID
	Name string
}

func (s UserSender) SenderID() uuid.UUID { return s.ID }
func (s BotSender) SenderID() uuid.UUID  { return s.ID }

func (UserSender) sender() {}
func (BotSender) sender()  {}

func SenderFromUser(u User) UserSender {
	return UserSender{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

func SenderFromBot(b Bot) BotSender {
	return BotSender{ID: b.ID, Name: b.Name}
}
