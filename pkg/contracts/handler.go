package contracts

import "github.com/julienschmidt/httprouter"

// Handler is one portal's set of routes. The application registers every
// handler on a single router.
type Handler interface {
	RegisterRoutes(*httprouter.Router)
}
