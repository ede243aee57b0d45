package api

import (
	"github.com/adrotate/suffixcore/internal/apiauth"
	"github.com/adrotate/suffixcore/internal/store"
)

// StoreKeyResolver adapts internal/store's api_keys table to KeyResolver.
type StoreKeyResolver struct {
	Store *store.Store
}

// UserIDForToken hashes the presented token and looks up its owning,
// enabled key.
func (s StoreKeyResolver) UserIDForToken(token string) (string, bool) {
	key, err := s.Store.GetAPIKeyByHash(apiauth.HashToken(token))
	if err != nil {
		return "", false
	}
	return key.UserID, true
}
