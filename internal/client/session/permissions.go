package session

// Permissions mirrors the server's route policy so a client can hide
// actions the server would reject. The server remains the enforcer.
type Permissions struct {
	ViewItems   bool
	CreateItem  bool
	EditItem    bool
	DeleteItem  bool
	ManageUsers bool
}

func (s *Synchronizer) Permissions() Permissions {
	authed := s.IsAuthenticated()
	admin := authed && s.IsAdmin()
	return Permissions{
		ViewItems:   authed,
		CreateItem:  authed,
		EditItem:    admin,
		DeleteItem:  admin,
		ManageUsers: admin,
	}
}
