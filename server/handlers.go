// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sdms-foundation/sdms/lib/credential"
	"github.com/sdms-foundation/sdms/lib/dbclient"
	"github.com/sdms-foundation/sdms/lib/proto"
	"github.com/sdms-foundation/sdms/lib/schema"
	"github.com/sdms-foundation/sdms/lib/version"
	"github.com/sdms-foundation/sdms/transport"
)

func nack(code schema.ErrorCode, message string) error {
	return &transport.NackError{Code: code, Message: message}
}

// handlerTable maps each request type to its handler. Every request
// type must resolve in the registry.
func (s *Server) handlerTable() (map[proto.MessageType]HandlerFunc, error) {
	entries := []struct {
		request proto.Message
		handler HandlerFunc
	}{
		{&schema.VersionRequest{}, s.handleVersion},
		{&schema.GetAuthStatusRequest{}, s.handleGetAuthStatus},
		{&schema.AuthenticateByTokenRequest{}, s.handleAuthenticateByToken},
		{&schema.RepoAuthzRequest{}, s.handleRepoAuthz},
		{&schema.UserGetAccessTokenRequest{}, s.handleUserGetAccessToken},
	}
	table := make(map[proto.MessageType]HandlerFunc, len(entries))
	for _, entry := range entries {
		messageType, err := s.registry.TypeOf(entry.request)
		if err != nil {
			return nil, fmt.Errorf("server: handler for %T: %w", entry.request, err)
		}
		table[messageType] = entry.handler
	}
	return table, nil
}

func (s *Server) handleVersion(ctx context.Context, request *Request) (proto.Message, error) {
	return &schema.VersionReply{
		Release:  version.Short(),
		APIMajor: version.APIMajor,
		APIMinor: version.APIMinor,
		APIPatch: version.APIPatch,
	}, nil
}

func (s *Server) handleGetAuthStatus(ctx context.Context, request *Request) (proto.Message, error) {
	if request.Key == "" {
		return &schema.AuthStatusReply{}, nil
	}
	uid, err := s.manager.GetUID(ctx, request.Key)
	if err != nil {
		if !errors.Is(err, credential.ErrMissingKey) {
			return nil, err
		}
		return &schema.AuthStatusReply{}, nil
	}
	return &schema.AuthStatusReply{Auth: true, UID: uid}, nil
}

// handleAuthenticateByToken binds the sender's key to the token's
// owner in the transient tier.
func (s *Server) handleAuthenticateByToken(ctx context.Context, request *Request) (proto.Message, error) {
	if s.verifier == nil {
		return nil, nack(schema.ErrorCodeServiceError, "token authentication unavailable")
	}
	if request.Key == "" {
		return nil, nack(schema.ErrorCodeAuthnError, "no public key to authenticate")
	}
	payload := request.Envelope.Payload.(*schema.AuthenticateByTokenRequest)

	uid, err := s.verifier.VerifyToken(ctx, payload.Token)
	if err != nil {
		if errors.Is(err, dbclient.ErrInvalidToken) {
			return nil, nack(schema.ErrorCodeAuthnError, "invalid access token")
		}
		s.logger.Warn("token verification failed", "error", err)
		return nil, nack(schema.ErrorCodeServiceError, "token verification unavailable")
	}

	s.manager.AddKey(credential.Transient, request.Key, uid)
	s.logger.Info("key authenticated by token", "uid", uid)
	return &schema.AuthStatusReply{Auth: true, UID: uid}, nil
}

func (s *Server) handleRepoAuthz(ctx context.Context, request *Request) (proto.Message, error) {
	if s.authorizer == nil {
		return nil, nack(schema.ErrorCodeServiceError, "authorization unavailable")
	}
	payload := request.Envelope.Payload.(*schema.RepoAuthzRequest)

	err := s.authorizer.AuthorizeRepo(ctx, dbclient.RepoAccess{
		Repo:   payload.Repo,
		Client: payload.Client,
		File:   payload.File,
		Action: payload.Action,
	})
	switch {
	case err == nil:
		return &schema.AckReply{}, nil
	case errors.Is(err, dbclient.ErrDenied):
		return nil, nack(schema.ErrorCodeClientError, "access denied")
	default:
		s.logger.Warn("repository authorization failed", "repo", payload.Repo, "error", err)
		return nil, nack(schema.ErrorCodeServiceError, "authorization unavailable")
	}
}

func (s *Server) handleUserGetAccessToken(ctx context.Context, request *Request) (proto.Message, error) {
	if s.tokens == nil {
		return nil, nack(schema.ErrorCodeServiceError, "access tokens unavailable")
	}
	token, err := s.tokens.AccessToken(ctx, request.UID)
	if err != nil {
		s.logger.Warn("fetching access token failed", "uid", request.UID, "error", err)
		return nil, nack(schema.ErrorCodeServiceError, "access tokens unavailable")
	}
	seconds := token.ExpiresIn.Seconds()
	return &schema.UserAccessTokenReply{
		Access:    token.Token,
		ExpiresIn: uint32(min(max(seconds, 0), math.MaxUint32)),
	}, nil
}
