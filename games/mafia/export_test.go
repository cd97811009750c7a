package mafia

// InjectSnapshot feeds a snapshot through the session's inbox as if the
// store had pushed it, letting tests replay duplicate notifications.
func (s *Session) InjectSnapshot(room *Room) {
	s.inbox <- snapMsg{room: room}
}
