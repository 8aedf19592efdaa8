package services

import "buildinpublic-hub/models"

// AdminPolicy decides which handles may use operator paths.
type AdminPolicy interface {
	IsAdmin(handle string) bool
}

// AllowlistPolicy grants admin rights to a fixed set of GitHub handles.
type AllowlistPolicy struct {
	keys map[string]struct{}
}

func NewAllowlistPolicy(handles []string) *AllowlistPolicy {
	p := &AllowlistPolicy{keys: make(map[string]struct{}, len(handles))}
	for _, h := range handles {
		if k := models.HandleKey(h); k != "" {
			p.keys[k] = struct{}{}
		}
	}
	return p
}

func (p *AllowlistPolicy) IsAdmin(handle string) bool {
	if p == nil || handle == "" {
		return false
	}
	_, ok := p.keys[models.HandleKey(handle)]
	return ok
}

type denyAll struct{}

func (denyAll) IsAdmin(string) bool { return false }
