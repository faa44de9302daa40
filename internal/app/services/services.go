package services

// Services defined in this package:
// - AuthService: registration, email confirmation, login and the
//   session token lifecycle (logout variants, password reset)
// - UserService: profile management and administrative user operations

// ClientInfo carries the request attributes recorded on issued
// session tokens.
type ClientInfo struct {
	Agent     string
	IPAddress string
}
