package session

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jshea2/NMS-DMX-App/internal/config"
)

// Registry manages the durable client records inside the configuration
// document. Records are created on first contact and survive disconnects;
// only an explicit Remove deletes one.
type Registry struct {
	cfg *config.Store
}

// NewRegistry wraps the config store's client list.
func NewRegistry(cfg *config.Store) *Registry {
	return &Registry{cfg: cfg}
}

// GetOrCreate resolves a device id to its client record, creating one with
// the configured default role on first sight and refreshing lastSeen/lastIp
// on every reconnect. Reconnects with the same id are idempotent.
//
// Loopback connections are always granted editor, regardless of the stored
// role; the override is applied to the returned record, not persisted.
func (r *Registry) GetOrCreate(clientID, ip, userAgent string, isLoopback bool) (config.Client, error) {
	var result config.Client
	now := time.Now().UnixMilli()

	err := r.cfg.Mutate(func(doc *config.Document) {
		client := doc.ClientByID(clientID)
		if client == nil {
			nickname := ""
			if isLoopback {
				nickname = "Server"
			}
			doc.Clients = append(doc.Clients, config.Client{
				ID:        clientID,
				Role:      string(ParseRole(doc.WebServer.DefaultClientRole)),
				Nickname:  nickname,
				FirstSeen: now,
				LastSeen:  now,
				LastIP:    ip,
				UserAgent: userAgent,
			})
			client = &doc.Clients[len(doc.Clients)-1]
			log.Info().Str("client", ShortID(clientID)).Str("ip", ip).Str("role", client.Role).Msg("New client registered")
		} else {
			client.LastSeen = now
			client.LastIP = ip
			if userAgent != "" {
				client.UserAgent = userAgent
			}
		}
		result = *client
	})
	if err != nil {
		return config.Client{}, err
	}

	if isLoopback {
		result.Role = string(RoleEditor)
	}
	return result, nil
}

// ResolveRole looks up the current role for a device id. Unknown ids fail
// closed: a deleted record means no privileges, even on an open session.
func (r *Registry) ResolveRole(clientID string, isLoopback bool) Role {
	if isLoopback {
		return RoleEditor
	}
	doc := r.cfg.Get()
	client := doc.ClientByID(clientID)
	if client == nil {
		return RoleViewer
	}
	return ParseRole(client.Role)
}

// Exists reports whether a record for the device id is still registered.
func (r *Registry) Exists(clientID string) bool {
	doc := r.cfg.Get()
	return doc.ClientByID(clientID) != nil
}

// RequestAccess flags a viewer's record as requesting promotion.
func (r *Registry) RequestAccess(clientID string) error {
	return r.mutateClient(clientID, func(c *config.Client) error {
		if ParseRole(c.Role) != RoleViewer {
			return fmt.Errorf("client %s is not a viewer", ShortID(clientID))
		}
		c.PendingRequest = true
		log.Info().Str("client", ShortID(clientID)).Msg("Access requested")
		return nil
	})
}

// Approve promotes a pending viewer to controller and clears the flag.
func (r *Registry) Approve(clientID string) error {
	return r.mutateClient(clientID, func(c *config.Client) error {
		c.Role = string(RoleController)
		c.PendingRequest = false
		log.Info().Str("client", ShortID(clientID)).Msg("Client approved as controller")
		return nil
	})
}

// Deny clears a pending request without changing the role.
func (r *Registry) Deny(clientID string) error {
	return r.mutateClient(clientID, func(c *config.Client) error {
		c.PendingRequest = false
		return nil
	})
}

// SetRole assigns a role directly. Promotion to controller or above clears
// any pending request.
func (r *Registry) SetRole(clientID string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	return r.mutateClient(clientID, func(c *config.Client) error {
		c.Role = string(role)
		if role.CanEdit() {
			c.PendingRequest = false
		}
		log.Info().Str("client", ShortID(clientID)).Str("role", string(role)).Msg("Client role changed")
		return nil
	})
}

// SetNickname updates the display name.
func (r *Registry) SetNickname(clientID, nickname string) error {
	return r.mutateClient(clientID, func(c *config.Client) error {
		c.Nickname = nickname
		return nil
	})
}

// Remove deletes the client record entirely.
func (r *Registry) Remove(clientID string) error {
	return r.cfg.Mutate(func(doc *config.Document) {
		kept := doc.Clients[:0]
		for _, c := range doc.Clients {
			if c.ID != clientID {
				kept = append(kept, c)
			}
		}
		doc.Clients = kept
	})
}

// ClientStatus is a registry record plus its live connection state.
type ClientStatus struct {
	config.Client
	ShortID  string `json:"shortId"`
	IsActive bool   `json:"isActive"`
}

// AllWithStatus returns every registered client annotated with whether it has
// an active session.
func (r *Registry) AllWithStatus(active map[string]bool) []ClientStatus {
	doc := r.cfg.Get()
	out := make([]ClientStatus, 0, len(doc.Clients))
	for _, c := range doc.Clients {
		out = append(out, ClientStatus{
			Client:   c,
			ShortID:  ShortID(c.ID),
			IsActive: active[c.ID],
		})
	}
	return out
}

func (r *Registry) mutateClient(clientID string, fn func(*config.Client) error) error {
	var innerErr error
	err := r.cfg.Mutate(func(doc *config.Document) {
		client := doc.ClientByID(clientID)
		if client == nil {
			innerErr = fmt.Errorf("unknown client %s", ShortID(clientID))
			return
		}
		innerErr = fn(client)
	})
	if err != nil {
		return err
	}
	return innerErr
}
