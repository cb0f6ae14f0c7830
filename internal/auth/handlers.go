package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Armour007/fast-tasks/internal/ipc"
	"github.com/Armour007/fast-tasks/internal/mesh"
)

func decodeCredentials(payload json.RawMessage) (Credentials, error) {
	var c Credentials
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &c); err != nil {
			return c, fmt.Errorf("decode credentials: %w", err)
		}
	}
	if msg := c.MissingFields(); msg != "" {
		return c, errors.New(msg)
	}
	return c, nil
}

// RegisterHandlers binds the login and signin topics to p.
func RegisterHandlers(d *ipc.Dispatcher, p Provider) {
	d.Register(mesh.TopicLogin, func(ctx context.Context, payload json.RawMessage) (any, error) {
		c, err := decodeCredentials(payload)
		if err != nil {
			return nil, err
		}
		tok, ok, err := p.VerifyCredentials(ctx, c.Username, c.Pass)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidCredentials
		}
		return Token{Token: tok}, nil
	})

	d.Register(mesh.TopicSignin, func(ctx context.Context, payload json.RawMessage) (any, error) {
		c, err := decodeCredentials(payload)
		if err != nil {
			return nil, err
		}
		tok, err := p.RegisterCredentials(ctx, c)
		if err != nil {
			return nil, err
		}
		return Token{Token: tok}, nil
	})
}
