package chat

import "github.com/vitalink/telecare/internal/models"

// Messenger is the transport behind the consultation text channel. Login is
// asynchronous: exactly one of the callbacks fires, possibly after Login has
// returned. Send may be called only while logged in.
type Messenger interface {
	Login(username string, onSuccess func(), onError func(error))
	Logout()
	IsLoggedIn() bool
	CurrentUser() string
	Send(to, content string) error
	Messages() <-chan models.ChatMessage
}
