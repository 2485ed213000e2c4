// Package profile talks to the user service which owns profile records.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"finditnow-auth/internal/domain/auth"
	"finditnow-auth/internal/interservice"
	xerrors "finditnow-auth/internal/pkg/errors"

	"github.com/google/uuid"
)

const userService = "user-service"

// Creator creates the user profile once a credential is verified.
type Creator interface {
	CreateProfile(ctx context.Context, credID uuid.UUID, email, firstName, phone string, role auth.Role) (uuid.UUID, error)
}

// Client is the HTTP implementation of Creator over the inter-service client.
type Client struct {
	isc *interservice.Client
}

func NewClient(isc *interservice.Client) *Client {
	return &Client{isc: isc}
}

type createProfileRequest struct {
	CredentialID string `json:"credentialId"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	Phone        string `json:"phoneNo,omitempty"`
	Role         string `json:"role"`
}

type createProfileResponse struct {
	UserID string `json:"userId"`
}

// CreateProfile asks the user service to create a profile for the
// credential and returns the new user id.
func (c *Client) CreateProfile(ctx context.Context, credID uuid.UUID, email, firstName, phone string, role auth.Role) (uuid.UUID, error) {
	payload, err := json.Marshal(createProfileRequest{
		CredentialID: credID.String(),
		Email:        email,
		FirstName:    firstName,
		Phone:        phone,
		Role:         string(role),
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal profile request: %w", err)
	}

	resp, err := c.isc.Call(ctx, userService, "/internal/users", http.MethodPost, payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user service call failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return uuid.Nil, fmt.Errorf("user service returned %d: %s: %w", resp.StatusCode, resp.Body, xerrors.ErrInternal)
	}

	var out createProfileResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return uuid.Nil, fmt.Errorf("invalid user service payload: %w", err)
	}

	userID, err := uuid.Parse(out.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user service returned malformed user id: %w", err)
	}

	return userID, nil
}
