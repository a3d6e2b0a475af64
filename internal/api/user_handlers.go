package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mymapsapp/mymaps-server/internal/domain"
)

func (s *Server) registerUserRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listUsers",
		Method:      http.MethodGet,
		Path:        "/api/v1/users",
		Summary:     "List users",
		Description: "Returns every onboarded user",
		Tags:        []string{"Users"},
	}, s.handleListUsers)

	huma.Register(s.api, huma.Operation{
		OperationID: "getUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{userId}",
		Summary:     "Get profile",
		Tags:        []string{"Users"},
	}, s.handleGetProfile)

	huma.Register(s.api, huma.Operation{
		OperationID: "getUserByUsername",
		Method:      http.MethodGet,
		Path:        "/api/v1/usernames/{username}",
		Summary:     "Get profile by username",
		Tags:        []string{"Users"},
	}, s.handleGetUserByUsername)

	huma.Register(s.api, huma.Operation{
		OperationID: "checkUsername",
		Method:      http.MethodGet,
		Path:        "/api/v1/usernames/{username}/available",
		Summary:     "Check username availability",
		Description: "Reports whether the username is free or already belongs to the caller",
		Tags:        []string{"Users"},
	}, s.handleUsernameAvailable)

	huma.Register(s.api, huma.Operation{
		OperationID: "getFollowers",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{userId}/followers",
		Summary:     "List followers",
		Tags:        []string{"Users"},
	}, s.handleFollowers)

	huma.Register(s.api, huma.Operation{
		OperationID: "getFollowing",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{userId}/following",
		Summary:     "List followed users",
		Tags:        []string{"Users"},
	}, s.handleFollowing)

	huma.Register(s.api, huma.Operation{
		OperationID: "getFollowStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{userId}/follow",
		Summary:     "Get follow status",
		Description: "Reports whether the caller follows the user",
		Tags:        []string{"Users"},
	}, s.handleFollowStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "toggleFollow",
		Method:      http.MethodPost,
		Path:        "/api/v1/users/{userId}/follow",
		Summary:     "Follow or unfollow",
		Description: "Flips the caller's follow of the user. The change is visible at once; with async the backend call settles in the background and failures arrive as mutation.failed events",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}, {"cookie": {}}},
	}, s.handleToggleFollow)

	huma.Register(s.api, huma.Operation{
		OperationID: "getMe",
		Method:      http.MethodGet,
		Path:        "/api/v1/me",
		Summary:     "Get current user",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}, {"cookie": {}}},
	}, s.handleGetMe)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateMe",
		Method:      http.MethodPatch,
		Path:        "/api/v1/me",
		Summary:     "Update current user",
		Description: "Updates the caller's profile; usernames must be unique",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}, {"cookie": {}}},
	}, s.handleUpdateMe)
}

// === DTOs ===

// UsernameInput identifies a user by username.
type UsernameInput struct {
	Username string `path:"username" doc:"Username (case-insensitive)"`
}

// ToggleFollowInput contains parameters for a follow toggle.
type ToggleFollowInput struct {
	UserID string `path:"userId" doc:"User to follow or unfollow"`
	Async  bool   `query:"async" doc:"Return before the backend call settles"`
}

// UpdateMeInput contains the caller's profile edit.
type UpdateMeInput struct {
	Body domain.ProfileUpdate
}

// FollowStatusResponse reports the caller's relation to a user.
type FollowStatusResponse struct {
	Following bool `json:"following" doc:"Whether the caller follows the user"`
}

// FollowStatusOutput wraps the follow status for Huma.
type FollowStatusOutput struct {
	Body FollowStatusResponse
}

// FollowStateOutput wraps the state after a toggle for Huma.
type FollowStateOutput struct {
	Body domain.FollowState
}

// UsernameAvailableResponse reports whether a username can be claimed.
type UsernameAvailableResponse struct {
	Available bool `json:"available" doc:"Whether the caller may take the username"`
}

// UsernameAvailableOutput wraps the availability answer for Huma.
type UsernameAvailableOutput struct {
	Body UsernameAvailableResponse
}

// ProfileOutput wraps a profile for Huma.
type ProfileOutput struct {
	Body domain.UserProfile
}

// ProfileListOutput wraps a list of profiles for Huma.
type ProfileListOutput struct {
	Body []domain.UserProfile
}

// === Handlers ===

func (s *Server) handleListUsers(ctx context.Context, _ *struct{}) (*ProfileListOutput, error) {
	users, err := s.appFor(ctx).Users.AllUsers(ctx)
	if err != nil {
		return nil, err
	}
	return &ProfileListOutput{Body: users}, nil
}

func (s *Server) handleGetProfile(ctx context.Context, input *UserIDInput) (*ProfileOutput, error) {
	profile, err := s.appFor(ctx).Users.Profile(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	return &ProfileOutput{Body: profile}, nil
}

func (s *Server) handleGetUserByUsername(ctx context.Context, input *UsernameInput) (*ProfileOutput, error) {
	profile, err := s.appFor(ctx).Users.User(ctx, input.Username)
	if err != nil {
		return nil, err
	}
	return &ProfileOutput{Body: profile}, nil
}

func (s *Server) handleUsernameAvailable(ctx context.Context, input *UsernameInput) (*UsernameAvailableOutput, error) {
	available, err := s.appFor(ctx).Users.UsernameAvailable(ctx, input.Username)
	if err != nil {
		return nil, err
	}
	return &UsernameAvailableOutput{Body: UsernameAvailableResponse{Available: available}}, nil
}

func (s *Server) handleFollowers(ctx context.Context, input *UserIDInput) (*ProfileListOutput, error) {
	return s.followList(ctx, input.UserID, domain.DirectionFollowers)
}

func (s *Server) handleFollowing(ctx context.Context, input *UserIDInput) (*ProfileListOutput, error) {
	return s.followList(ctx, input.UserID, domain.DirectionFollowing)
}

func (s *Server) followList(ctx context.Context, userID string, dir domain.FollowDirection) (*ProfileListOutput, error) {
	users, err := s.appFor(ctx).Users.Followers(ctx, userID, dir)
	if err != nil {
		return nil, err
	}
	return &ProfileListOutput{Body: users}, nil
}

func (s *Server) handleFollowStatus(ctx context.Context, input *UserIDInput) (*FollowStatusOutput, error) {
	following, err := s.appFor(ctx).Users.IsFollowing(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	return &FollowStatusOutput{Body: FollowStatusResponse{Following: following}}, nil
}

func (s *Server) handleToggleFollow(ctx context.Context, input *ToggleFollowInput) (*FollowStateOutput, error) {
	if _, err := requireSession(ctx); err != nil {
		return nil, err
	}
	mutations := s.appFor(ctx).Mutations

	var (
		state domain.FollowState
		err   error
	)
	if input.Async {
		state, err = mutations.ToggleFollowAsync(ctx, input.UserID)
	} else {
		state, err = mutations.ToggleFollow(ctx, input.UserID)
	}
	if err != nil {
		return nil, err
	}
	return &FollowStateOutput{Body: state}, nil
}

func (s *Server) handleGetMe(ctx context.Context, _ *struct{}) (*ProfileOutput, error) {
	if _, err := requireSession(ctx); err != nil {
		return nil, err
	}
	profile, err := s.appFor(ctx).Users.Me(ctx)
	if err != nil {
		return nil, err
	}
	return &ProfileOutput{Body: profile}, nil
}

func (s *Server) handleUpdateMe(ctx context.Context, input *UpdateMeInput) (*ProfileOutput, error) {
	if _, err := requireSession(ctx); err != nil {
		return nil, err
	}
	profile, err := s.appFor(ctx).Mutations.UpdateProfile(ctx, input.Body)
	if err != nil {
		return nil, err
	}
	return &ProfileOutput{Body: profile}, nil
}
